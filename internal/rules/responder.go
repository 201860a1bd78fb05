package rules

import "strings"

// Clarify is returned when no situation matches.
const Clarify = "상황을 좀 더 구체적으로 말씀해 주시면 더 정확한 도움을 드릴 수 있습니다."

// Situation pairs trigger keywords with a canned response.
type Situation struct {
	Name     string
	Keywords []string
	Response string
}

// DefaultSituations is the shipped table. Order is significant: the first
// matching situation answers.
func DefaultSituations() []Situation {
	return []Situation{
		{
			Name:     "prevention",
			Keywords: []string{"예방", "미리", "설정", "막기", "막으려"},
			Response: "PASS 앱에서 명의도용방지서비스를 신청하세요. 설정 방법을 알려드릴까요?",
		},
		{
			Name:     "post_damage",
			Keywords: []string{"당했", "피해", "사기", "돈", "송금"},
			Response: "즉시 132번으로 신고하고 1811-0041번으로 지원 신청하세요.",
		},
		{
			Name:     "suspicious",
			Keywords: []string{"의심", "이상", "확인", "맞나"},
			Response: "의심스러우면 절대 응답하지 마시고 132번으로 확인하세요.",
		},
		{
			Name:     "hotline_132",
			Keywords: []string{"132"},
			Response: "132번은 대한법률구조공단 무료 법률상담 번호입니다.",
		},
		{
			Name:     "hotline_1811",
			Keywords: []string{"1811"},
			Response: "1811-0041번은 보이스피싱제로 생활비 지원 번호입니다.",
		},
		{
			Name:     "pass_app",
			Keywords: []string{"PASS", "pass", "패스"},
			Response: "PASS 앱에서 명의도용방지서비스를 신청할 수 있습니다.",
		},
		{
			Name:     "help_request",
			Keywords: []string{"도와", "도움", "방법"},
			Response: "구체적으로 어떤 상황인지 말씀해 주세요.",
		},
	}
}

// Responder maps an utterance to a canned response. It is immutable and
// safe to share.
type Responder struct {
	situations []Situation
}

func New(situations ...Situation) *Responder {
	if len(situations) == 0 {
		situations = DefaultSituations()
	}
	return &Responder{situations: append([]Situation(nil), situations...)}
}

// Respond never fails; unmatched text gets Clarify.
func (r *Responder) Respond(text string) string {
	_, resp := r.Match(text)
	return resp
}

// Match returns the matched situation name ("" if none) and its response.
func (r *Responder) Match(text string) (string, string) {
	for _, s := range r.situations {
		for _, kw := range s.Keywords {
			if strings.Contains(text, kw) {
				return s.Name, s.Response
			}
		}
	}
	return "", Clarify
}
