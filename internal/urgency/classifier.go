package urgency

import "strings"

const (
	// Base is the score of text that matches no category.
	Base = 5
	Min  = 1
	Max  = 10
)

// Category is a keyword group that adds Bonus at most once.
type Category struct {
	Name     string
	Bonus    int
	Keywords []string
}

// DefaultCategories returns the high-risk, medium-risk and time-critical groups.
func DefaultCategories() []Category {
	return []Category{
		{Name: "high_risk", Bonus: 3, Keywords: []string{"돈", "송금", "보냈", "이체", "급해", "사기", "당했"}},
		{Name: "medium_risk", Bonus: 2, Keywords: []string{"의심", "이상", "전화", "문자", "피싱"}},
		{Name: "time_critical", Bonus: 2, Keywords: []string{"방금", "지금", "분전", "분 전", "시간전", "시간 전", "오늘"}},
	}
}

// Classifier scores free text from 1 to 10 for emergency severity.
// It holds no mutable state and is safe to share between sessions.
type Classifier struct {
	categories []Category
}

func NewClassifier(categories ...Category) *Classifier {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	return &Classifier{categories: categories}
}

// Classify returns the urgency of text. Empty text scores Base.
func (c *Classifier) Classify(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return Base
	}
	score := Base
	for _, cat := range c.categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				score += cat.Bonus
				break
			}
		}
	}
	return clamp(score)
}

func clamp(v int) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}

// Advice returns the canned guidance spoken for a given urgency level.
func Advice(level int) string {
	switch {
	case level >= 9:
		return "매우 긴급합니다! 즉시 112에 신고하고 1811-0041번으로 연락하세요!"
	case level == 8:
		return "긴급 상황입니다! 지금 132번으로 전화하세요!"
	case level == 7:
		return "빠른 조치가 필요합니다. 132번 상담을 받으세요."
	case level == 6:
		return "주의가 필요한 상황입니다. 132번으로 상담받으세요."
	case level == 5:
		return "상담이 도움될 것 같습니다. 132번으로 연락해보세요."
	default:
		return "132번으로 상담받으세요."
	}
}
