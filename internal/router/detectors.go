package router

import (
	"strings"
	"unicode/utf8"
)

// Detector scores one utterance as evidence for using the language model.
// Only emergency-style detectors may return a negative score.
type Detector interface {
	Name() string
	Reason() string
	Score(text string, c Context) float64
}

// DefaultDetectors returns the shipped registry in evaluation order.
func DefaultDetectors() []Detector {
	return []Detector{
		Complexity{},
		ContextMismatch{},
		Dissatisfaction{},
		Emergency{},
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Complexity rewards explanation-seeking phrasing and long questions.
type Complexity struct{}

var explanationPhrases = []string{
	"자세히", "구체적으로", "설명", "어떻게", "왜", "뭐예요", "어디예요", "누구예요",
	"언제예요", "무슨 뜻", "의미", "방법", "조치", "무엇을", "어떡하죠", "궁금",
}

func (Complexity) Name() string   { return "complexity" }
func (Complexity) Reason() string { return "복잡한 질문 또는 설명 요청 감지" }

func (Complexity) Score(text string, _ Context) float64 {
	score := 0.0
	if containsAny(text, explanationPhrases) {
		score += 0.4
	}
	if utf8.RuneCountInString(text) > 15 && (strings.Contains(text, "?") || strings.Contains(text, "요")) {
		score += 0.2
	}
	return score
}

// ContextMismatch rewards contradiction markers and echoes of a term the
// assistant just used.
type ContextMismatch struct{}

var contradictionMarkers = []string{"말고", "아니라", "다른", "그런게 아니라", "추가로", "또"}

// referenceTerms are terms the assistant tends to say that a confused caller repeats back.
var referenceTerms = []string{"132", "1811", "112", "PASS", "지급정지"}

func (ContextMismatch) Name() string   { return "context_mismatch" }
func (ContextMismatch) Reason() string { return "문맥 불일치 또는 이전 답변에 대한 추가 질문 감지" }

func (ContextMismatch) Score(text string, c Context) float64 {
	score := 0.0
	if containsAny(text, contradictionMarkers) {
		score += 0.6
	}
	if c.LastAssistantMessage != "" && utf8.RuneCountInString(text) > 5 {
		for _, term := range referenceTerms {
			if strings.Contains(c.LastAssistantMessage, term) && strings.Contains(text, term) {
				score += 0.5
				break
			}
		}
	}
	return score
}

// Dissatisfaction rewards frustration and re-explanation requests.
type Dissatisfaction struct{}

var frustrationPhrases = []string{
	"이해 못하겠", "이해가 안", "모르겠", "헷갈려", "어려워", "복잡해", "제대로", "정확히",
	"확실히", "더 쉽게", "간단하게", "상황을 묻지 말고", "자꾸 같은 말", "답변이 이상",
}

func (Dissatisfaction) Name() string   { return "dissatisfaction" }
func (Dissatisfaction) Reason() string { return "사용자 불만족 또는 재설명 요청 감지" }

func (Dissatisfaction) Score(text string, _ Context) float64 {
	if containsAny(text, frustrationPhrases) {
		return 0.7
	}
	return 0
}

// EmergencyBlock is the sentinel score that forbids the language model.
const EmergencyBlock = -1.0

// Emergency blocks the language model when the caller needs an instant answer.
type Emergency struct{}

var urgentActionWords = []string{"급해", "빨리", "즉시", "당장", "긴급", "위험", "큰일"}

func (Emergency) Name() string   { return "emergency" }
func (Emergency) Reason() string { return "응급 상황 - 빠른 처리 우선" }

func (Emergency) Score(text string, _ Context) float64 {
	if containsAny(text, urgentActionWords) {
		return EmergencyBlock
	}
	return 0
}
