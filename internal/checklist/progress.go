package checklist

// Value is a normalized answer class.
type Value string

const (
	Yes     Value = "yes"
	No      Value = "no"
	Unclear Value = "unclear"
	Amount  Value = "amount"
	Time    Value = "time"
	Text    Value = "text"
)

// Answer is the recorded response to one item.
type Answer struct {
	Raw         string `json:"raw"`
	Value       Value  `json:"value"`
	Amount      int64  `json:"amount,omitempty"`
	TimeUrgency int    `json:"time_urgency,omitempty"`
}

// Progress is the per-session cursor through a Checklist. It is plain data
// so a session store can serialize it.
type Progress struct {
	CurrentIndex        int               `json:"current_index"`
	Responses           map[string]Answer `json:"responses,omitempty"`
	UrgentActionsRaised []string          `json:"urgent_actions_raised,omitempty"`
	Delivered           map[string]bool   `json:"delivered,omitempty"`
	Complete            bool              `json:"complete"`
}

func (p *Progress) raise(cond string) {
	for _, c := range p.UrgentActionsRaised {
		if c == cond {
			return
		}
	}
	p.UrgentActionsRaised = append(p.UrgentActionsRaised, cond)
}
