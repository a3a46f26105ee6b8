package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"nexzywatch/internal/domain"
)

type PairRequest struct {
	Code         string                    `json:"code"`
	DeviceID     string                    `json:"deviceId"`
	DeviceName   string                    `json:"deviceName"`
	Capabilities domain.DeviceCapabilities `json:"capabilities"`
}

type PairResponse struct {
	Message      string             `json:"message"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	User         domain.UserProfile `json:"user"`
}

type RefreshResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type ValidateResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CoinBalanceResponse struct {
	Balance             int   `json:"balance"`
	DailyBonusAvailable *bool `json:"dailyBonusAvailable,omitempty"`
}

type ChatSessionResponse struct {
	Response       string `json:"response"`
	SessionID      string `json:"sessionId"`
	CoinsRemaining int    `json:"coinsRemaining"`
	GameContext    string `json:"gameContext,omitempty"`
}

type chatHistoryResponse struct {
	Sessions []domain.ChatSession `json:"sessions"`
}

type gameLibraryResponse struct {
	Games   []domain.Game `json:"games"`
	HasMore bool          `json:"hasMore"`
}

type questionHistoryResponse struct {
	Questions []domain.Question `json:"questions"`
	HasMore   bool              `json:"hasMore"`
}

// PairWatch exchanges a short-lived pairing code for session credentials.
// Unauthenticated; a 401 here never triggers a refresh.
func (c *Client) PairWatch(ctx context.Context, req PairRequest) (PairResponse, error) {
	var resp PairResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		endpoint: "/auth/watch/pair",
		body:     req,
	}, &resp)
	return resp, err
}

// RefreshToken exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken, deviceID string) (RefreshResponse, error) {
	var resp RefreshResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		endpoint: "/auth/watch/refresh",
		body: map[string]string{
			"refreshToken": refreshToken,
			"deviceId":     deviceID,
		},
	}, &resp)
	return resp, err
}

// ValidateSession checks the current session against the backend.
func (c *Client) ValidateSession(ctx context.Context) (ValidateResponse, error) {
	var resp ValidateResponse
	err := c.do(ctx, call{
		method:          http.MethodGet,
		endpoint:        "/auth/watch/validate",
		authenticated:   true,
		includeDeviceID: true,
	}, &resp)
	return resp, err
}

// UnpairWatch releases the device registration on the backend.
func (c *Client) UnpairWatch(ctx context.Context, deviceID string) (MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, call{
		method:        http.MethodPost,
		endpoint:      "/auth/watch/unpair",
		body:          map[string]string{"deviceId": deviceID},
		authenticated: true,
	}, &resp)
	return resp, err
}

func (c *Client) CoinBalance(ctx context.Context) (CoinBalanceResponse, error) {
	var resp CoinBalanceResponse
	err := c.do(ctx, call{
		method:        http.MethodGet,
		endpoint:      "/auth/watch/coins",
		authenticated: true,
	}, &resp)
	return resp, err
}

func (c *Client) StartChatSession(ctx context.Context, message, gameID string) (ChatSessionResponse, error) {
	var resp ChatSessionResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		endpoint: "/chat/session",
		body: map[string]string{
			"message": message,
			"gameId":  gameID,
		},
		authenticated: true,
	}, &resp)
	return resp, err
}

func (c *Client) ChatHistory(ctx context.Context, limit int) ([]domain.ChatSession, error) {
	var resp chatHistoryResponse
	err := c.do(ctx, call{
		method:        http.MethodGet,
		endpoint:      fmt.Sprintf("/chat/history?limit=%d", limit),
		authenticated: true,
	}, &resp)
	return resp.Sessions, err
}

// GameLibrary fetches one page of the library listing.
func (c *Client) GameLibrary(ctx context.Context, limit int, cursor *Cursor) (Page[domain.Game], error) {
	var resp gameLibraryResponse
	err := c.do(ctx, call{
		method:        http.MethodGet,
		endpoint:      "/games/library?" + pageQuery(limit, cursor),
		authenticated: true,
	}, &resp)
	if err != nil {
		return Page[domain.Game]{}, err
	}
	page := Page[domain.Game]{Items: resp.Games, More: resp.HasMore}
	if n := len(resp.Games); n > 0 {
		last := resp.Games[n-1]
		page.Next = &Cursor{
			LastCreatedAt: last.CreatedAt.UTC().Format(time.RFC3339),
			LastKey:       last.ID,
		}
	}
	return page, nil
}

// QuestionHistory fetches one page of the question history listing.
func (c *Client) QuestionHistory(ctx context.Context, limit int, cursor *Cursor) (Page[domain.Question], error) {
	var resp questionHistoryResponse
	err := c.do(ctx, call{
		method:        http.MethodGet,
		endpoint:      "/questions/all?" + pageQuery(limit, cursor),
		authenticated: true,
	}, &resp)
	if err != nil {
		return Page[domain.Question]{}, err
	}
	page := Page[domain.Question]{Items: resp.Questions, More: resp.HasMore}
	if n := len(resp.Questions); n > 0 {
		last := resp.Questions[n-1]
		page.Next = &Cursor{
			LastCreatedAt: last.CreatedAt.UTC().Format(time.RFC3339),
			LastKey:       last.ID,
		}
	}
	return page, nil
}

func pageQuery(limit int, cursor *Cursor) string {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	cursor.apply(q)
	return q.Encode()
}
