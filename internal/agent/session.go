package agent

import (
	"time"

	"github.com/Createyouracccount/last-mike/internal/checklist"
	"github.com/Createyouracccount/last-mike/internal/urgency"
)

// Session is one conversation. It is plain data: the Counselor mutates it
// and a SessionStore serializes it between turns.
type Session struct {
	ID                string             `json:"id"`
	Mode              Mode               `json:"mode"`
	State             State              `json:"state"`
	TurnCount         int                `json:"turn_count"`
	UrgencyLevel      int                `json:"urgency_level"`
	Transcript        []Entry            `json:"transcript"`
	Assessment        checklist.Progress `json:"assessment"`
	ConsultationTurns int                `json:"consultation_turns"`
	AssessmentSummary string             `json:"assessment_summary,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewSession returns a session in the Greeting state.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		State:        StateGreeting,
		UrgencyLevel: urgency.Base,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Session) append(role Role, text string, at time.Time) {
	s.Transcript = append(s.Transcript, Entry{Role: role, Text: text, At: at})
	s.UpdatedAt = at
}

// LastAssistantMessage returns the most recent assistant line, if any.
func (s *Session) LastAssistantMessage() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i].Text
		}
	}
	return ""
}

// UserTurns counts user transcript entries.
func (s *Session) UserTurns() int {
	n := 0
	for _, e := range s.Transcript {
		if e.Role == RoleUser {
			n++
		}
	}
	return n
}

// Done reports whether the session reached the terminal state.
func (s *Session) Done() bool { return s.State == StateComplete }
