package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Createyouracccount/last-mike/internal/agent"
	"github.com/Createyouracccount/last-mike/internal/checklist"
)

// Uploader puts one object into a bucket.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
}

// Record is the archived form of a finished session.
type Record struct {
	ID                string             `json:"id"`
	Mode              agent.Mode         `json:"mode"`
	FinalState        agent.State        `json:"final_state"`
	TurnCount         int                `json:"turn_count"`
	UrgencyLevel      int                `json:"urgency_level"`
	Assessment        checklist.Progress `json:"assessment"`
	AssessmentSummary string             `json:"assessment_summary,omitempty"`
	Transcript        []agent.Entry      `json:"transcript"`
	StartedAt         time.Time          `json:"started_at"`
	EndedAt           time.Time          `json:"ended_at"`
}

// Transcripts writes finished sessions to sessions/<yyyy-mm-dd>/<id>.json.
type Transcripts struct {
	up  Uploader
	now func() time.Time
}

func NewTranscripts(up Uploader) *Transcripts {
	return &Transcripts{up: up, now: time.Now}
}

// Key returns the object key of a session started at t.
func Key(id string, t time.Time) string {
	return fmt.Sprintf("sessions/%s/%s.json", t.UTC().Format("2006-01-02"), id)
}

func (a *Transcripts) Archive(ctx context.Context, s *agent.Session) error {
	rec := Record{
		ID:                s.ID,
		Mode:              s.Mode,
		FinalState:        s.State,
		TurnCount:         s.TurnCount,
		UrgencyLevel:      s.UrgencyLevel,
		Assessment:        s.Assessment,
		AssessmentSummary: s.AssessmentSummary,
		Transcript:        s.Transcript,
		StartedAt:         s.CreatedAt,
		EndedAt:           a.now(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return a.up.Upload(ctx, Key(s.ID, s.CreatedAt), "application/json", data)
}
