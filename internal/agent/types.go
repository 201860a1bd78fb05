package agent

import (
	"context"
	"errors"
	"time"

	"github.com/Createyouracccount/last-mike/internal/llm"
)

// State is a node of the session state machine.
type State string

const (
	StateGreeting      State = "greeting"
	StateModeSelection State = "mode_selection"
	StateAssessment    State = "assessment"
	StateConsultation  State = "consultation"
	StateEmergency     State = "emergency"
	StateComplete      State = "complete"
)

// Mode is the counseling track the caller picked.
type Mode string

const (
	ModeUnselected   Mode = ""
	ModeAssessment   Mode = "assessment"
	ModeConsultation Mode = "consultation"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one transcript line.
type Entry struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownState    = errors.New("unknown session state")
)

// Responder produces a language-model reply. Any error means the caller
// must fall back to the rule table.
type Responder interface {
	Respond(ctx context.Context, text string, c llm.Context) (string, error)
}

// SessionStore persists sessions between turns.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Archiver keeps the transcript of a finished session.
type Archiver interface {
	Archive(ctx context.Context, s *Session) error
}

// Recorder receives counters about routing and state changes.
type Recorder interface {
	Turn()
	Route(route string)
	LLMOutcome(outcome string)
	Transition(from, to string)
}

type nopRecorder struct{}

func (nopRecorder) Turn()                     {}
func (nopRecorder) Route(string)              {}
func (nopRecorder) LLMOutcome(string)         {}
func (nopRecorder) Transition(string, string) {}
