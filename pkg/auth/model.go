package auth

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleArtist    Role = "artist"
	RoleCollector Role = "collector"
)

func (r Role) Valid() bool {
	return r == RoleArtist || r == RoleCollector
}

type Account struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SignUpMetadata seeds the account's public profile.
type SignUpMetadata struct {
	FullName       string    `json:"full_name"`
	Bio            string    `json:"bio"`
	Statement      string    `json:"artist_statement"`
	ExhibitHistory []Exhibit `json:"exhibit_history"`
}

// MinExhibits is how many past exhibitions an artist lists to sign up.
const MinExhibits = 5

// Exhibit is one entry of an artist's exhibition history.
type Exhibit struct {
	Title    string `json:"title"`
	Gallery  string `json:"gallery"`
	Location string `json:"location"`
}

func (e Exhibit) complete() bool {
	return strings.TrimSpace(e.Title) != "" && strings.TrimSpace(e.Gallery) != "" && strings.TrimSpace(e.Location) != ""
}

// ValidateExhibits requires at least min entries, each with a title, gallery and location.
func ValidateExhibits(history []Exhibit, min int) error {
	if len(history) < min {
		return fmt.Errorf("%w: at least %d exhibits are required, got %d", ErrInvalidExhibits, min, len(history))
	}
	for i, e := range history {
		if !e.complete() {
			return fmt.Errorf("%w: exhibit %d needs a title, gallery and location", ErrInvalidExhibits, i+1)
		}
	}
	return nil
}

// Session is the resolved identity of an authenticated request.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

type SessionRecord struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type VerificationCode struct {
	ID        int64
	Email     string
	Code      string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
