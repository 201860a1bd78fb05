package checklist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is how an answer to an item is normalized.
type Kind string

const (
	KindYesNo    Kind = "yes_no"
	KindAmount   Kind = "amount"
	KindTime     Kind = "time"
	KindFreeText Kind = "free_text"
)

// TimeCritical is the sentinel raised when a Time answer matches a trigger.
const TimeCritical = "time_critical"

const (
	MsgAlreadyComplete = "평가가 완료되었습니다."
	MsgAllMet          = "기본 조치는 완료되었습니다. 추가 상담은 132번으로 연락하세요."
	yesNoSuffix        = " 네 또는 아니요로 답해주세요."
)

// ErrIndexOutOfRange means a progress cursor moved past the completion point.
var ErrIndexOutOfRange = errors.New("checklist: index beyond checklist length")

// Item is one question of the assessment.
type Item struct {
	ID     string
	Prompt string
	Kind   Kind
	// UrgentIfNo raises an immediate action when answered No.
	UrgentIfNo bool
	// UrgentIfAnswerMatches raises TimeCritical when any phrase is present (Time items).
	UrgentIfAnswerMatches []string
	// Requires names an item that must have been answered Yes before this
	// item can raise an urgent action.
	Requires string
}

type summaryStep struct {
	id     string
	action string
}

// Checklist is an immutable ordered sequence of items plus the canned
// messages tied to them. One Checklist is shared by every session.
type Checklist struct {
	items           []Item
	immediateAction map[string]string
	summaryPriority []summaryStep
}

// Default returns the shipped damage-assessment checklist.
func Default() *Checklist {
	c, err := New([]Item{
		{ID: "victim_status", Prompt: "본인이 피해자인가요?" + yesNoSuffix, Kind: KindYesNo},
		{ID: "immediate_danger", Prompt: "지금도 계속 연락이 오고 있나요?" + yesNoSuffix, Kind: KindYesNo},
		{ID: "money_sent", Prompt: "돈을 보내셨나요?" + yesNoSuffix, Kind: KindYesNo},
		{
			ID: "sent_when", Prompt: "언제 보내셨나요? 방금, 오늘, 어제처럼 말씀해주세요.", Kind: KindTime,
			UrgentIfAnswerMatches: []string{"방금", "지금", "분 전", "분전", "시간 전", "시간전", "오늘", "아까"},
			Requires:              "money_sent",
		},
		{ID: "loss_amount", Prompt: "피해 금액은 얼마인가요? 예를 들어 300만원처럼 말씀해주세요.", Kind: KindAmount},
		{ID: "account_frozen", Prompt: "계좌지급정지 신청하셨나요?" + yesNoSuffix, Kind: KindYesNo, UrgentIfNo: true, Requires: "money_sent"},
		{ID: "police_report", Prompt: "112 신고하셨나요?" + yesNoSuffix, Kind: KindYesNo, UrgentIfNo: true},
		{ID: "pass_app", Prompt: "패스(PASS) 앱 설치되어 있나요?" + yesNoSuffix, Kind: KindYesNo},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// New validates items and builds a Checklist with the default messages.
func New(items []Item) (*Checklist, error) {
	if len(items) == 0 {
		return nil, errors.New("checklist: no items")
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" || it.ID == TimeCritical {
			return nil, fmt.Errorf("checklist: invalid item id %q", it.ID)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("checklist: duplicate item id %q", it.ID)
		}
		seen[it.ID] = true
	}
	return &Checklist{
		items: append([]Item(nil), items...),
		immediateAction: map[string]string{
			"account_frozen": "긴급! 지금 즉시 은행에 전화해서 계좌지급정지 신청하세요!",
			"police_report":  "지금 바로 112에 신고하세요. 신고 후 다음 질문을 이어가겠습니다.",
			TimeCritical:     "골든타임입니다! 지금 바로 송금한 은행 콜센터에 전화해서 지급정지를 요청하세요!",
		},
		summaryPriority: []summaryStep{
			{id: "account_frozen", action: "즉시 계좌지급정지 신청"},
			{id: "police_report", action: "112번 신고"},
			{id: "pass_app", action: "PASS 앱에서 명의도용방지 신청"},
		},
	}, nil
}

func (c *Checklist) Len() int { return len(c.items) }

// Items returns a copy of the ordered items.
func (c *Checklist) Items() []Item { return append([]Item(nil), c.items...) }

// NextQuestion returns the current prompt, or the final summary once every
// item is answered; the summary marks p complete.
func (c *Checklist) NextQuestion(p *Progress) string {
	if p.CurrentIndex >= len(c.items) {
		p.Complete = true
		return c.Summary(p)
	}
	return c.items[p.CurrentIndex].Prompt
}

// Answer records raw as the answer to the current item and returns the next
// message for the user. It never panics; call Validate first to detect a
// corrupted cursor.
func (c *Checklist) Answer(p *Progress, raw string) string {
	if p.Complete {
		return MsgAlreadyComplete
	}
	if p.CurrentIndex >= len(c.items) {
		return c.NextQuestion(p)
	}
	if p.Responses == nil {
		p.Responses = make(map[string]Answer, len(c.items))
	}

	item := c.items[p.CurrentIndex]
	ans := Normalize(item.Kind, raw)
	p.Responses[item.ID] = ans

	if c.armed(p, item) {
		if item.UrgentIfNo && ans.Value == No {
			p.raise(item.ID)
		}
		if item.Kind == KindTime && matchesAny(ans.Raw, item.UrgentIfAnswerMatches) {
			p.raise(TimeCritical)
		}
	}
	p.CurrentIndex++

	for _, cond := range p.UrgentActionsRaised {
		if p.Delivered[cond] {
			continue
		}
		if msg, ok := c.immediateAction[cond]; ok {
			if p.Delivered == nil {
				p.Delivered = make(map[string]bool)
			}
			p.Delivered[cond] = true
			return msg
		}
	}
	return c.NextQuestion(p)
}

func (c *Checklist) armed(p *Progress, item Item) bool {
	if item.Requires == "" {
		return true
	}
	prev, ok := p.Responses[item.Requires]
	return ok && prev.Value == Yes
}

// Summary lists at most two unmet priority steps. An answered step is unmet
// unless the answer was Yes.
func (c *Checklist) Summary(p *Progress) string {
	var unmet []string
	for _, step := range c.summaryPriority {
		if a, ok := p.Responses[step.id]; ok && a.Value != Yes {
			unmet = append(unmet, step.action)
		}
	}
	if len(unmet) == 0 {
		return MsgAllMet
	}
	if len(unmet) > 2 {
		unmet = unmet[:2]
	}
	var b strings.Builder
	b.WriteString("우선순위 조치:\n")
	for i, action := range unmet {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(action)
		b.WriteString("\n")
	}
	b.WriteString("\n자세한 상담은 132번으로 연락하세요.")
	return b.String()
}

// Validate reports a progress state that no sequence of Answer calls can produce.
func (c *Checklist) Validate(p *Progress) error {
	if p.CurrentIndex < 0 || p.CurrentIndex > len(c.items) {
		return fmt.Errorf("%w: index=%d len=%d", ErrIndexOutOfRange, p.CurrentIndex, len(c.items))
	}
	return nil
}

func matchesAny(text string, phrases []string) bool {
	for _, ph := range phrases {
		if strings.Contains(text, ph) {
			return true
		}
	}
	return false
}
