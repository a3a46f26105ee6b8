package domain

import "time"

type SessionState string

const (
	StateUnauthenticated SessionState = "UNAUTHENTICATED"
	StateAuthenticating  SessionState = "AUTHENTICATING"
	StateAuthenticated   SessionState = "AUTHENTICATED"
	StateRefreshing      SessionState = "REFRESHING"
)

type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Coins    int    `json:"coins"`
}

// Session holds the credential state owned by the session manager.
// Both tokens are non-empty whenever the session is authenticated.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *UserProfile
}

type DeviceCapabilities struct {
	HasHaptics bool   `json:"hasHaptics"`
	ScreenSize string `json:"screenSize"`
	OSVersion  string `json:"osVersion"`
}

type Game struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Platform   string     `json:"platform,omitempty"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type ChatSession struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	GameContext string    `json:"gameContext,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Question struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	GameContext string    `json:"gameContext,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
