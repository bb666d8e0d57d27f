package types

import (
	"time"

	"github.com/google/uuid"
)

// Entry states. An entry is pending from the moment its question is stored
// until an answer (or the error text) replaces the empty answer.
const (
	StatusPending  = "pending"
	StatusAnswered = "answered"
	StatusFailed   = "failed"
)

// Answers shown when the model gives nothing usable.
const (
	NoResponseAnswer = "Something went wrong or no response found."
	ErrorAnswer      = "Error getting response."
)

// HistoryEntry is one question and its answer within a session.
type HistoryEntry struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  uuid.UUID  `json:"session_id"`
	Position   int        `json:"position"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// IsPending reports whether the entry is still waiting for its answer.
func (e HistoryEntry) IsPending() bool {
	return e.Status == StatusPending
}

// DOMID is the element id the history panel scrolls to.
func (e HistoryEntry) DOMID() string {
	return QuestionDOMID(e.Position)
}

// Session represents a chat session.
type Session struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	EntryCount int       `json:"entry_count"`
}
