package agent

import (
	"time"

	"github.com/Createyouracccount/last-mike/internal/llm"
	"github.com/Createyouracccount/last-mike/internal/router"
)

// Policy holds the tunable bounds of a conversation.
type Policy struct {
	LLMThreshold        float64       `yaml:"llm_threshold"`
	LLMTimeout          time.Duration `yaml:"llm_timeout"`
	MaxResponseRunes    int           `yaml:"max_response_runes"`
	GlobalTurnCap       int           `yaml:"global_turn_cap"`
	AssessmentTurnCap   int           `yaml:"assessment_turn_cap"`
	ConsultationTurnCap int           `yaml:"consultation_turn_cap"`
	EmergencyUrgency    int           `yaml:"emergency_urgency"`
	AdvisoryUrgency     int           `yaml:"advisory_urgency"`
	HistoryEntries      int           `yaml:"history_entries"`
}

func DefaultPolicy() Policy {
	return Policy{
		LLMThreshold:        router.DefaultThreshold,
		LLMTimeout:          llm.DefaultTimeout,
		MaxResponseRunes:    llm.DefaultMaxRunes,
		GlobalTurnCap:       12,
		AssessmentTurnCap:   15,
		ConsultationTurnCap: 8,
		EmergencyUrgency:    9,
		AdvisoryUrgency:     8,
		HistoryEntries:      6,
	}
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.LLMThreshold <= 0 {
		p.LLMThreshold = d.LLMThreshold
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = d.LLMTimeout
	}
	if p.MaxResponseRunes <= 0 {
		p.MaxResponseRunes = d.MaxResponseRunes
	}
	if p.GlobalTurnCap <= 0 {
		p.GlobalTurnCap = d.GlobalTurnCap
	}
	if p.AssessmentTurnCap <= 0 {
		p.AssessmentTurnCap = d.AssessmentTurnCap
	}
	if p.ConsultationTurnCap <= 0 {
		p.ConsultationTurnCap = d.ConsultationTurnCap
	}
	if p.EmergencyUrgency <= 0 {
		p.EmergencyUrgency = d.EmergencyUrgency
	}
	if p.AdvisoryUrgency <= 0 {
		p.AdvisoryUrgency = d.AdvisoryUrgency
	}
	if p.HistoryEntries <= 0 {
		p.HistoryEntries = d.HistoryEntries
	}
	return p
}
