package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"nexzywatch/internal/api"
	"nexzywatch/internal/config"
	"nexzywatch/internal/domain"
	"nexzywatch/internal/identity"
	"nexzywatch/internal/keychain"
)

// ErrPairingInProgress is returned when Pair is called while another pairing
// attempt is still running.
var ErrPairingInProgress = errors.New("pairing already in progress")

// Manager owns the session: tokens, user profile, and the state machine
// UNAUTHENTICATED -> AUTHENTICATING -> AUTHENTICATED -> REFRESHING. It is the
// only writer of session state; all mutation goes through its lock. Refresh is
// single-flight: concurrent 401s coalesce into one network refresh.
type Manager struct {
	mu    sync.Mutex
	store keychain.Store
	ids   *identity.Provider
	api   *api.Client

	deviceName   string
	capabilities domain.DeviceCapabilities
	timeout      time.Duration

	state        domain.SessionState
	accessToken  string
	refreshToken string
	user         *domain.UserProfile

	refreshGroup singleflight.Group
}

func NewManager(cfg config.Config, store keychain.Store) *Manager {
	m := &Manager{
		store:      store,
		ids:        identity.New(store),
		deviceName: cfg.DeviceName,
		capabilities: domain.DeviceCapabilities{
			HasHaptics: cfg.HasHaptics,
			ScreenSize: cfg.ScreenSize,
			OSVersion:  cfg.OSVersion,
		},
		timeout: cfg.APITimeout,
		state:   domain.StateUnauthenticated,
	}
	m.api = api.NewClient(cfg.APIBaseURL, cfg.APITimeout, m)
	m.loadStoredSession()
	return m
}

// loadStoredSession restores credentials on cold start. A partial record
// (one token present without the other) is treated as an invalid session and
// cleared, keeping the device id.
func (m *Manager) loadStoredSession() {
	access, okAccess := m.store.Get(keychain.KeyAccessToken)
	refresh, okRefresh := m.store.Get(keychain.KeyRefreshToken)
	if okAccess && okRefresh {
		m.accessToken = access
		m.refreshToken = refresh
		m.state = domain.StateAuthenticated
		return
	}
	if okAccess || okRefresh {
		m.store.Remove(keychain.KeyAccessToken)
		m.store.Remove(keychain.KeyRefreshToken)
		m.store.Remove(keychain.KeyUserID)
	}
}

// API exposes the request pipeline for domain calls (coins, library, chat).
func (m *Manager) API() *api.Client {
	return m.api
}

func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == domain.StateAuthenticated || m.state == domain.StateRefreshing
}

// User returns the in-memory profile cached at pairing time, if any.
func (m *Manager) User() (domain.UserProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return domain.UserProfile{}, false
	}
	return *m.user, true
}

// AccessToken implements api.Credentials. Pure in-memory read; cold-start
// fallback to the store happens once in NewManager.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// DeviceID implements api.Credentials. Empty when no device id exists yet;
// the pipeline then omits the header.
func (m *Manager) DeviceID() string {
	id, _ := m.ids.Get()
	return id
}

// Pair exchanges the human-entered code for long-lived credentials. On
// success tokens and user id are persisted and the profile is cached; on
// failure the state returns to UNAUTHENTICATED and nothing is cached.
func (m *Manager) Pair(ctx context.Context, code string) error {
	m.mu.Lock()
	if m.state == domain.StateAuthenticating {
		m.mu.Unlock()
		return ErrPairingInProgress
	}
	m.state = domain.StateAuthenticating
	m.mu.Unlock()

	resp, err := m.api.PairWatch(ctx, api.PairRequest{
		Code:         code,
		DeviceID:     m.ids.GetOrCreate(),
		DeviceName:   m.deviceName,
		Capabilities: m.capabilities,
	})
	if err != nil {
		m.mu.Lock()
		m.state = domain.StateUnauthenticated
		m.mu.Unlock()
		return err
	}

	user := resp.User
	m.saveSession(resp.AccessToken, resp.RefreshToken, &user)
	return nil
}

func (m *Manager) saveSession(accessToken, refreshToken string, user *domain.UserProfile) {
	m.store.Set(keychain.KeyAccessToken, accessToken)
	m.store.Set(keychain.KeyRefreshToken, refreshToken)
	if user != nil {
		m.store.Set(keychain.KeyUserID, user.ID)
	}

	m.mu.Lock()
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	if user != nil {
		m.user = user
	}
	m.state = domain.StateAuthenticated
	m.mu.Unlock()
}

// Refresh implements api.Credentials. Concurrent callers share one network
// refresh; the in-flight exchange is detached from any single caller's
// cancellation so its result benefits whoever is still waiting. Refresh
// tokens rotate on the backend, so a duplicate exchange would invalidate the
// session.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return nil, m.doRefresh(rctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	if m.refreshToken == "" {
		if stored, ok := m.store.Get(keychain.KeyRefreshToken); ok {
			m.refreshToken = stored
		}
	}
	refreshToken := m.refreshToken
	if refreshToken == "" {
		m.mu.Unlock()
		return api.ErrUnauthorized
	}
	previous := m.state
	if m.state == domain.StateAuthenticated {
		m.state = domain.StateRefreshing
	}
	m.mu.Unlock()

	resp, err := m.api.RefreshToken(ctx, refreshToken, m.ids.GetOrCreate())
	if err != nil {
		// Only a definitive "refresh token no longer valid" answer tears the
		// session down. Transient failures leave tokens and state untouched.
		if errors.Is(err, api.ErrUnauthorized) {
			m.Logout()
			return err
		}
		m.mu.Lock()
		m.state = previous
		m.mu.Unlock()
		return err
	}

	// The refresh response carries no profile; the cached user is retained.
	m.saveSession(resp.AccessToken, resp.RefreshToken, nil)
	return nil
}

// Validate checks the session against the backend. The pipeline already
// performs one refresh-retry internally; an unauthorized result here gets one
// explicit refresh attempt before the session is reported dead.
func (m *Manager) Validate(ctx context.Context) bool {
	m.mu.Lock()
	hasAccess := m.accessToken != ""
	hasRefresh := m.refreshToken != ""
	m.mu.Unlock()
	if !hasAccess {
		_, hasAccess = m.store.Get(keychain.KeyAccessToken)
	}
	if !hasRefresh {
		_, hasRefresh = m.store.Get(keychain.KeyRefreshToken)
	}
	if !hasAccess || !hasRefresh {
		return false
	}

	resp, err := m.api.ValidateSession(ctx)
	if err == nil {
		return resp.Valid
	}
	if errors.Is(err, api.ErrUnauthorized) {
		return m.Refresh(ctx) == nil
	}
	return false
}

// Logout clears tokens and user id from memory and storage. The device id is
// kept so a forced logout after refresh-token expiry re-pairs under the same
// identity. Idempotent.
func (m *Manager) Logout() {
	m.store.Remove(keychain.KeyAccessToken)
	m.store.Remove(keychain.KeyRefreshToken)
	m.store.Remove(keychain.KeyUserID)

	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.user = nil
	m.state = domain.StateUnauthenticated
	m.mu.Unlock()
}

// Unpair releases the device on the backend, then tears the local session
// down regardless of the endpoint result and clears the device id.
func (m *Manager) Unpair(ctx context.Context) error {
	deviceID := m.ids.GetOrCreate()
	_, err := m.api.UnpairWatch(ctx, deviceID)
	m.Logout()
	m.ids.Clear()
	return err
}
