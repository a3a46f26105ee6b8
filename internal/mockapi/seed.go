package mockapi

import (
	"fmt"
	"time"

	"nexzywatch/internal/domain"
)

// SeedDemoData loads a pairing code and sample listings so the mock backend
// is usable out of the box.
func (s *Server) SeedDemoData(pairingCode string) {
	s.AddPairingCode(pairingCode, domain.UserProfile{
		ID:       "u1",
		Username: "alice",
		Coins:    50,
	})
	s.SeedGames(DemoGames(25))
	s.SeedQuestions(DemoQuestions(40))
}

// DemoGames returns n games ordered newest-first.
func DemoGames(n int) []domain.Game {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	out := make([]domain.Game, 0, n)
	for i := 0; i < n; i++ {
		createdAt := base.Add(-time.Duration(i) * 24 * time.Hour)
		lastPlayed := createdAt.Add(6 * time.Hour)
		out = append(out, domain.Game{
			ID:         fmt.Sprintf("game-%03d", n-i),
			Name:       fmt.Sprintf("Demo Game %d", n-i),
			Platform:   "pc",
			LastPlayed: &lastPlayed,
			CreatedAt:  createdAt,
		})
	}
	return out
}

// DemoQuestions returns n questions ordered newest-first.
func DemoQuestions(n int) []domain.Question {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Question{
			ID:        fmt.Sprintf("q-%03d", n-i),
			Message:   fmt.Sprintf("How do I beat level %d?", n-i),
			Response:  "Try the side entrance.",
			CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return out
}
