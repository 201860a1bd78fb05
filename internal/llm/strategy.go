package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt is sent as the system instruction by every Client.
const SystemPrompt = `당신은 보이스피싱 전문 상담원입니다.

규칙:
1. 80자 이내로 핵심만 간결하게 응답합니다.
2. 사용자가 다음에 무엇을 물어보면 좋을지 "next_suggestion"으로 제안합니다.
3. 반드시 아래 JSON 형식으로만 응답합니다.

{"response": "핵심 답변 (80자 이내)", "next_suggestion": "다음으로 궁금해할 만한 질문"}`

// Turn is one line of conversation history given to the model.
type Turn struct {
	Role string
	Text string
}

// Context is what the adapter knows about the conversation.
type Context struct {
	LastAssistantMessage string
	// Signals are the router detector names that fired for this utterance.
	Signals           []string
	UrgencyLevel      int
	AssessmentSummary string
	History           []Turn
}

// Strategy builds a task prompt for one kind of request and checks the reply.
type Strategy interface {
	Name() string
	Prompt(text string, c Context) string
	Valid(response string) bool
}

type explanation struct{}

func (explanation) Name() string { return "explanation" }

func (explanation) Prompt(text string, _ Context) string {
	return fmt.Sprintf(`사용자가 설명을 요청했습니다: %q

다음 중 해당하는 내용을 80자 이내로 명확하게 설명하세요:
1. 132번: 대한법률구조공단 무료 법률상담
2. 1811-0041번: 보이스피싱제로 생활비 지원 (최대 300만원)
3. PASS 앱: 명의도용방지서비스 신청
4. mSAFER: 휴대폰 명의도용 차단 서비스
5. 지급정지: 사기 계좌로의 송금 차단`, text)
}

func (explanation) Valid(response string) bool {
	for _, kw := range []string{"132", "1811", "112", "PASS", "mSAFER", "지급정지", "명의도용"} {
		if strings.Contains(response, kw) {
			return true
		}
	}
	return false
}

type alternative struct{}

func (alternative) Name() string { return "alternative" }

func (alternative) Prompt(text string, c Context) string {
	last := c.LastAssistantMessage
	if last == "" {
		last = "없음"
	}
	return fmt.Sprintf(`사용자가 다른 방법을 요청했습니다: %q
상담원의 이전 답변은 %q 이었습니다.
이전 답변과 겹치지 않는 새로운 해결책을 80자 이내로 제시하세요.`, text, last)
}

func (alternative) Valid(string) bool { return true }

type clarification struct{}

func (clarification) Name() string { return "clarification" }

func (clarification) Prompt(text string, _ Context) string {
	return fmt.Sprintf(`사용자의 말이 명확하지 않습니다: %q

상황을 파악하기 위한 구체적인 질문을 80자 이내로 하세요.
현재 상황이 무엇인지, 어떤 도움이 필요한지, 피해를 당했는지 예방하려는지 확인하세요.
친근하고 도움이 되는 톤으로 질문하세요.`, text)
}

func (clarification) Valid(response string) bool {
	return strings.Contains(response, "?") || strings.Contains(response, "까요")
}

// strategyFor picks a strategy from the router signals; the first signal
// with a strategy wins and clarification is the fallback.
func strategyFor(signals []string) Strategy {
	for _, s := range signals {
		switch s {
		case "complexity":
			return explanation{}
		case "context_mismatch":
			return alternative{}
		case "dissatisfaction":
			return clarification{}
		}
	}
	return clarification{}
}

// BuildPrompt renders the user prompt for text under strategy s.
func BuildPrompt(s Strategy, text string, c Context) string {
	var b strings.Builder
	if c.AssessmentSummary != "" {
		b.WriteString("[체크리스트 결과]\n")
		b.WriteString(c.AssessmentSummary)
		b.WriteString("\n\n")
	}
	if len(c.History) > 0 {
		b.WriteString("[대화]\n")
		for _, t := range c.History {
			b.WriteString("[")
			b.WriteString(strings.ToUpper(t.Role))
			b.WriteString("] ")
			b.WriteString(t.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "긴급도: %d/10\n\n", c.UrgencyLevel)
	b.WriteString(s.Prompt(text, c))
	return b.String()
}
