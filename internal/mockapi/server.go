// Package mockapi is a stand-in Nexzy backend for development and tests. It
// implements the watch auth endpoints with the documented status-code
// semantics: rotating refresh tokens, device limits, pairing-code rate limits,
// and cursor-paginated listings.
package mockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"nexzywatch/internal/domain"
)

type contextKey string

const contextKeyUserID contextKey = "user_id"

const (
	pairAttemptLimit  = 5
	pairAttemptWindow = time.Minute
)

type refreshRecord struct {
	UserID   string
	DeviceID string
}

type deviceRecord struct {
	UserID string
	Name   string
}

type Server struct {
	jwtSecret  string
	accessTTL  time.Duration
	maxDevices int

	mu            sync.Mutex
	codes         map[string]domain.UserProfile
	refreshTokens map[string]refreshRecord
	devices       map[string]deviceRecord
	coins         map[string]int
	games         []domain.Game
	questions     []domain.Question
	chats         []domain.ChatSession
	tokenGen      int64
	failedPairs   int
	pairWindowEnd time.Time
	refreshCalls  int
}

func NewServer(jwtSecret string, accessTTL time.Duration, maxDevices int) *Server {
	return &Server{
		jwtSecret:     jwtSecret,
		accessTTL:     accessTTL,
		maxDevices:    maxDevices,
		codes:         make(map[string]domain.UserProfile),
		refreshTokens: make(map[string]refreshRecord),
		devices:       make(map[string]deviceRecord),
		coins:         make(map[string]int),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Post("/auth/watch/pair", s.handlePair)
	r.Post("/auth/watch/refresh", s.handleRefresh)

	r.Group(func(authed chi.Router) {
		authed.Use(s.requireUser)
		authed.Get("/auth/watch/validate", s.handleValidate)
		authed.Post("/auth/watch/unpair", s.handleUnpair)
		authed.Get("/auth/watch/coins", s.handleCoins)
		authed.Post("/chat/session", s.handleChatSession)
		authed.Get("/chat/history", s.handleChatHistory)
		authed.Get("/games/library", s.handleGameLibrary)
		authed.Get("/questions/all", s.handleQuestionHistory)
	})

	return r
}

// AddPairingCode registers a single-use pairing code for the given user.
func (s *Server) AddPairingCode(code string, user domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = user
	if _, ok := s.coins[user.ID]; !ok {
		s.coins[user.ID] = user.Coins
	}
}

func (s *Server) SeedGames(games []domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games = games
}

func (s *Server) SeedQuestions(questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = questions
}

// ExpireAccessTokens invalidates every access token issued so far while
// leaving refresh tokens valid. Used to force the 401 refresh path.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenGen++
}

// RevokeRefreshTokens invalidates all refresh tokens, forcing re-pairing.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]refreshRecord)
}

// RefreshCalls reports how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code         string                    `json:"code"`
		DeviceID     string                    `json:"deviceId"`
		DeviceName   string                    `json:"deviceName"`
		Capabilities domain.DeviceCapabilities `json:"capabilities"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	s.mu.Lock()
	now := time.Now()
	if now.After(s.pairWindowEnd) {
		s.failedPairs = 0
		s.pairWindowEnd = now.Add(pairAttemptWindow)
	}
	if s.failedPairs >= pairAttemptLimit {
		retry := int(time.Until(s.pairWindowEnd).Seconds()) + 1
		s.mu.Unlock()
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusTooManyRequests, "Too many pairing attempts")
		return
	}

	if _, paired := s.devices[req.DeviceID]; paired {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Watch already paired")
		return
	}

	user, ok := s.codes[req.Code]
	if !ok {
		s.failedPairs++
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Invalid or expired pairing code")
		return
	}

	deviceCount := 0
	for _, dev := range s.devices {
		if dev.UserID == user.ID {
			deviceCount++
		}
	}
	if deviceCount >= s.maxDevices {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "Maximum watches reached")
		return
	}

	delete(s.codes, req.Code)
	s.devices[req.DeviceID] = deviceRecord{UserID: user.ID, Name: req.DeviceName}
	refreshToken := uuid.NewString()
	s.refreshTokens[refreshToken] = refreshRecord{UserID: user.ID, DeviceID: req.DeviceID}
	gen := s.tokenGen
	s.mu.Unlock()

	accessToken, err := s.signAccessToken(user.ID, gen)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create access token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Watch paired",
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         user,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
		DeviceID     string `json:"deviceId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.refreshCalls++
	record, ok := s.refreshTokens[req.RefreshToken]
	if !ok || (req.DeviceID != "" && record.DeviceID != req.DeviceID) {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Refresh token is invalid or revoked")
		return
	}
	// Rotation: the presented token is consumed and replaced.
	delete(s.refreshTokens, req.RefreshToken)
	rotated := uuid.NewString()
	s.refreshTokens[rotated] = record
	gen := s.tokenGen
	s.mu.Unlock()

	accessToken, err := s.signAccessToken(record.UserID, gen)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create access token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Token refreshed",
		"accessToken":  accessToken,
		"refreshToken": rotated,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	deviceID := r.Header.Get("X-Device-ID")

	s.mu.Lock()
	device, ok := s.devices[deviceID]
	s.mu.Unlock()

	valid := ok && device.UserID == userID
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    valid,
		"userId":   userID,
		"deviceId": deviceID,
	})
}

func (s *Server) handleUnpair(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	device, ok := s.devices[req.DeviceID]
	owned := ok && device.UserID == userID
	if owned {
		delete(s.devices, req.DeviceID)
		for token, record := range s.refreshTokens {
			if record.DeviceID == req.DeviceID {
				delete(s.refreshTokens, token)
			}
		}
	}
	s.mu.Unlock()

	// Another user's device looks the same as an unknown one.
	if !owned {
		writeError(w, http.StatusNotFound, "Device not paired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Watch unpaired"})
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	s.mu.Lock()
	balance := s.coins[userID]
	s.mu.Unlock()

	bonus := true
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":             balance,
		"dailyBonusAvailable": bonus,
	})
}

func (s *Server) handleChatSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	var req struct {
		Message string `json:"message"`
		GameID  string `json:"gameId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	if s.coins[userID] > 0 {
		s.coins[userID]--
	}
	remaining := s.coins[userID]
	session := domain.ChatSession{
		ID:          uuid.NewString(),
		Message:     req.Message,
		Response:    fmt.Sprintf("Echo: %s", req.Message),
		GameContext: req.GameID,
		Timestamp:   time.Now().UTC(),
	}
	s.chats = append(s.chats, session)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"response":       session.Response,
		"sessionId":      session.ID,
		"coinsRemaining": remaining,
		"gameContext":    session.GameContext,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 20)

	s.mu.Lock()
	start := len(s.chats) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.ChatSession, len(s.chats)-start)
	copy(out, s.chats[start:])
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

func (s *Server) handleGameLibrary(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 10)

	s.mu.Lock()
	items := make([]domain.Game, len(s.games))
	copy(items, s.games)
	s.mu.Unlock()

	page, more := paginate(items, limit, cursor, func(g domain.Game) (time.Time, string) {
		return g.CreatedAt, g.ID
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"games":   page,
		"hasMore": more,
	})
}

func (s *Server) handleQuestionHistory(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 10)

	s.mu.Lock()
	items := make([]domain.Question, len(s.questions))
	copy(items, s.questions)
	s.mu.Unlock()

	page, more := paginate(items, limit, cursor, func(q domain.Question) (time.Time, string) {
		return q.CreatedAt, q.ID
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": page,
		"hasMore":   more,
	})
}

type cursorParams struct {
	lastCreatedAt time.Time
	lastKey       string
}

// parseCursor enforces the both-or-neither rule for the cursor pair.
func parseCursor(r *http.Request) (*cursorParams, error) {
	q := r.URL.Query()
	rawCreatedAt := q.Get("lastCreatedAt")
	rawKey := q.Get("lastKey")
	if rawCreatedAt == "" && rawKey == "" {
		return nil, nil
	}
	if rawCreatedAt == "" || rawKey == "" {
		return nil, fmt.Errorf("lastCreatedAt and lastKey must be provided together")
	}
	createdAt, err := time.Parse(time.RFC3339, rawCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid lastCreatedAt: %v", err)
	}
	return &cursorParams{lastCreatedAt: createdAt, lastKey: rawKey}, nil
}

// paginate walks items (expected newest-first) starting after the cursor
// position and returns up to limit of them plus an explicit more flag.
func paginate[T any](items []T, limit int, cursor *cursorParams, key func(T) (time.Time, string)) ([]T, bool) {
	out := make([]T, 0, limit)
	remaining := 0
	for _, item := range items {
		createdAt, id := key(item)
		if cursor != nil {
			if createdAt.After(cursor.lastCreatedAt) {
				continue
			}
			if createdAt.Equal(cursor.lastCreatedAt) && id >= cursor.lastKey {
				continue
			}
		}
		if len(out) < limit {
			out = append(out, item)
		} else {
			remaining++
		}
	}
	return out, remaining > 0
}

func (s *Server) signAccessToken(userID string, gen int64) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"gen": gen,
		"iat": now.Unix(),
		"exp": now.Add(s.accessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "Access token expired")
			return
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid claims")
			return
		}
		gen, _ := claims["gen"].(float64)
		s.mu.Lock()
		expired := int64(gen) < s.tokenGen
		s.mu.Unlock()
		if expired {
			writeError(w, http.StatusUnauthorized, "Access token expired")
			return
		}
		sub, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), contextKeyUserID, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(contextKeyUserID).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user not found in context")
	}
	return userID, nil
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"statusCode": status,
		"message":    msg,
	})
}
