package router

import (
	"log"
	"unicode"
)

const (
	ReasonTooShort   = "입력이 너무 짧음"
	ReasonRuleBased  = "룰 기반으로 충분히 처리 가능"
	DefaultThreshold = 0.6
	// Significance is the minimum score a detector needs to count toward confidence.
	Significance = 0.3
	minRunes     = 3
)

// Context is the conversation state a detector may look at.
type Context struct {
	LastAssistantMessage string
	ConversationTurns    int
}

// Decision is the routing outcome for one utterance.
type Decision struct {
	UseLanguageModel bool
	Confidence       float64
	Reasons          []string
	// Fired lists the names of the significant detectors, in registry order.
	Fired          []string
	DetectorScores map[string]float64
	EmergencyBlock bool
	TooShort       bool
}

// Router runs the detector registry and decides between the language model
// and the rule table. Register and Remove are meant for startup; Decide is
// safe for concurrent use once the registry is fixed.
type Router struct {
	threshold float64
	detectors []Detector
}

// New builds a Router. A non-positive threshold selects DefaultThreshold and
// an empty detector list selects DefaultDetectors.
func New(threshold float64, detectors ...Detector) *Router {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Router{threshold: threshold, detectors: append([]Detector(nil), detectors...)}
}

// Register appends d, replacing any detector with the same name in place.
func (r *Router) Register(d Detector) {
	for i, existing := range r.detectors {
		if existing.Name() == d.Name() {
			r.detectors[i] = d
			return
		}
	}
	r.detectors = append(r.detectors, d)
}

// Remove drops the named detector and reports whether it was present.
func (r *Router) Remove(name string) bool {
	for i, d := range r.detectors {
		if d.Name() == name {
			r.detectors = append(r.detectors[:i], r.detectors[i+1:]...)
			return true
		}
	}
	return false
}

// Detectors returns the registered detector names in order.
func (r *Router) Detectors() []string {
	names := make([]string, 0, len(r.detectors))
	for _, d := range r.detectors {
		names = append(names, d.Name())
	}
	return names
}

// Decide routes one utterance.
func (r *Router) Decide(text string, c Context) Decision {
	if significantRunes(text) < minRunes {
		return Decision{Reasons: []string{ReasonTooShort}, DetectorScores: map[string]float64{}, TooShort: true}
	}

	scores := make(map[string]float64, len(r.detectors))
	blockedBy := ""
	for _, d := range r.detectors {
		s := safeScore(d, text, c)
		scores[d.Name()] = s
		if s < 0 && blockedBy == "" {
			blockedBy = d.Reason()
		}
	}
	if blockedBy != "" {
		return Decision{Reasons: []string{blockedBy}, DetectorScores: scores, EmergencyBlock: true}
	}

	var confidence float64
	var reasons, fired []string
	for _, d := range r.detectors {
		if s := scores[d.Name()]; s > Significance {
			confidence += s
			reasons = append(reasons, d.Reason())
			fired = append(fired, d.Name())
		}
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence >= r.threshold {
		return Decision{UseLanguageModel: true, Confidence: confidence, Reasons: reasons, Fired: fired, DetectorScores: scores}
	}
	return Decision{Confidence: confidence, Reasons: []string{ReasonRuleBased}, Fired: fired, DetectorScores: scores}
}

// safeScore treats a panicking detector as scoring zero.
func safeScore(d Detector, text string, c Context) (score float64) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("router: detector %s panicked: %v", d.Name(), rec)
			score = 0
		}
	}()
	return d.Score(text, c)
}

func significantRunes(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
