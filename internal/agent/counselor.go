package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/Createyouracccount/last-mike/internal/checklist"
	"github.com/Createyouracccount/last-mike/internal/llm"
	"github.com/Createyouracccount/last-mike/internal/router"
	"github.com/Createyouracccount/last-mike/internal/rules"
	"github.com/Createyouracccount/last-mike/internal/urgency"
)

const MsgGreeting = "안녕하세요. 보이스피싱 상담센터입니다.\n" +
	"1번은 피해 상황 체크리스트 (단계별 확인)\n" +
	"2번은 맞춤형 상담 (상황에 맞는 조치)\n" +
	"1번 또는 2번이라고 말씀해주세요."

const (
	MsgChooseMode        = "1번 또는 2번이라고 말씀해주세요.\n1번은 피해 상황 체크리스트, 2번은 맞춤형 상담입니다."
	MsgAssessmentIntro   = "피해 상황을 체계적으로 확인하겠습니다.\n\n"
	MsgConsultationIntro = "맞춤형 상담을 시작하겠습니다. 어떤 상황인지 말씀해 주세요."
	MsgHandoff           = "\n\n더 궁금한 점이 있으면 말씀해 주세요."
	MsgRepeat            = "다시 말씀해 주세요."
	MsgTemporaryProblem  = "일시적 문제가 발생했습니다. 132번으로 연락주세요."
	MsgClosed            = "상담이 완료되었습니다. 추가 도움이 필요하시면 132번으로 연락하세요."
)

// Farewell is the closing line, chosen by the last urgency level.
func Farewell(level int) string {
	switch {
	case level >= 8:
		return "지금 말씀드린 것부터 하세요. 추가 도움이 필요하면 다시 연락하세요."
	case level >= 6:
		return "132번으로 상담받아보시고, 더 궁금한 게 있으면 연락주세요."
	default:
		return "예방 설정 해두시고, 의심스러우면 132번으로 상담받으세요."
	}
}

// Route labels reported to the Recorder.
const (
	RouteLLM            = "llm"
	RouteRules          = "rules"
	RouteEmergencyBlock = "emergency_block"
	RouteTooShort       = "too_short"
	RouteAdvisory       = "advisory"
)

// Counselor is the per-turn decision core. It holds only shared, read-only
// components, so one Counselor serves every session; each Session must be
// driven by one goroutine at a time.
type Counselor struct {
	policy    Policy
	urgency   *urgency.Classifier
	router    *router.Router
	checklist *checklist.Checklist
	rules     *rules.Responder
	llm       Responder
	recorder  Recorder
	now       func() time.Time
}

// NewCounselor builds a Counselor with the shipped tables and no language model.
func NewCounselor(policy Policy) *Counselor {
	policy = policy.WithDefaults()
	return &Counselor{
		policy:    policy,
		urgency:   urgency.NewClassifier(),
		router:    router.New(policy.LLMThreshold),
		checklist: checklist.Default(),
		rules:     rules.New(),
		recorder:  nopRecorder{},
		now:       time.Now,
	}
}

// WithLLM enables the language-model route.
func (c *Counselor) WithLLM(r Responder) *Counselor {
	c.llm = r
	return c
}

func (c *Counselor) WithRecorder(r Recorder) *Counselor {
	if r == nil {
		r = nopRecorder{}
	}
	c.recorder = r
	return c
}

func (c *Counselor) WithRouter(r *router.Router) *Counselor {
	c.router = r
	return c
}

func (c *Counselor) WithChecklist(cl *checklist.Checklist) *Counselor {
	c.checklist = cl
	return c
}

func (c *Counselor) WithRules(r *rules.Responder) *Counselor {
	c.rules = r
	return c
}

func (c *Counselor) WithClock(now func() time.Time) *Counselor {
	c.now = now
	return c
}

func (c *Counselor) Policy() Policy { return c.policy }

// Greet returns the opening message and records it. It is a no-op on a
// session that already left Greeting.
func (c *Counselor) Greet(s *Session) string {
	if s.State == StateGreeting && len(s.Transcript) == 0 {
		s.append(RoleAssistant, MsgGreeting, c.now())
	}
	return MsgGreeting
}

// ProcessTurn consumes one final utterance and returns the next state and
// the message for the caller. The session is updated in place.
func (c *Counselor) ProcessTurn(ctx context.Context, s *Session, utterance string) (state State, reply string) {
	if s.State == StateComplete {
		return StateComplete, MsgClosed
	}
	text := Preprocess(utterance)
	if text == "" {
		return s.State, MsgRepeat
	}

	from := s.State
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[%s] turn aborted: %v", s.ID, rec)
			state, reply = c.abort(s)
		}
		if from != state {
			c.recorder.Transition(string(from), string(state))
		}
	}()

	s.TurnCount++
	s.append(RoleUser, text, c.now())
	s.UrgencyLevel = c.urgency.Classify(text)
	c.recorder.Turn()

	reply, err := c.step(ctx, s, text)
	if err != nil {
		log.Printf("[%s] turn failed in %s: %v", s.ID, from, err)
		return c.abort(s)
	}
	s.append(RoleAssistant, reply, c.now())
	return s.State, reply
}

// abort ends a session whose state can no longer be trusted.
func (c *Counselor) abort(s *Session) (State, string) {
	s.State = StateComplete
	s.append(RoleAssistant, MsgTemporaryProblem, c.now())
	return StateComplete, MsgTemporaryProblem
}

func (c *Counselor) step(ctx context.Context, s *Session, text string) (string, error) {
	if s.State != StateEmergency && s.UrgencyLevel >= c.policy.EmergencyUrgency {
		s.State = StateEmergency
		return urgency.Advice(s.UrgencyLevel), nil
	}

	var reply string
	handoff := false
	switch s.State {
	case StateGreeting:
		s.State = StateModeSelection
		reply = c.selectMode(s, text)
	case StateModeSelection:
		reply = c.selectMode(s, text)
	case StateAssessment:
		r, done, err := c.assess(s, text)
		if err != nil {
			return "", err
		}
		reply, handoff = r, done
	case StateConsultation:
		reply = c.consult(ctx, s, text)
	case StateEmergency:
		s.State = StateComplete
		return Farewell(s.UrgencyLevel), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s.State)
	}

	reply = c.applyCaps(s, reply)
	if handoff && s.State == StateConsultation {
		reply += MsgHandoff
	}
	return reply, nil
}

func (c *Counselor) selectMode(s *Session, text string) string {
	switch detectMode(text) {
	case ModeAssessment:
		s.Mode = ModeAssessment
		s.State = StateAssessment
		return MsgAssessmentIntro + c.checklist.NextQuestion(&s.Assessment)
	case ModeConsultation:
		s.Mode = ModeConsultation
		s.State = StateConsultation
		return MsgConsultationIntro
	}
	return MsgChooseMode
}

// assess answers the current checklist item. done reports the hand-off to
// consultation.
func (c *Counselor) assess(s *Session, text string) (string, bool, error) {
	if err := c.checklist.Validate(&s.Assessment); err != nil {
		return "", false, err
	}
	reply := c.checklist.Answer(&s.Assessment, text)
	if !s.Assessment.Complete {
		return reply, false, nil
	}
	s.AssessmentSummary = reply
	s.Mode = ModeConsultation
	s.State = StateConsultation
	return reply, true, nil
}

func (c *Counselor) consult(ctx context.Context, s *Session, text string) string {
	s.ConsultationTurns++
	if s.UrgencyLevel >= c.policy.AdvisoryUrgency {
		c.recorder.Route(RouteAdvisory)
		return urgency.Advice(s.UrgencyLevel)
	}

	last := s.LastAssistantMessage()
	d := c.router.Decide(text, router.Context{LastAssistantMessage: last, ConversationTurns: s.ConsultationTurns})
	c.recorder.Route(routeLabel(d))

	fallback := c.rules.Respond(text)
	if !d.UseLanguageModel {
		return fallback
	}
	if c.llm == nil {
		c.recorder.LLMOutcome(string(llm.FailureUnavailable))
		return fallback
	}

	reply, err := c.llm.Respond(ctx, text, llm.Context{
		LastAssistantMessage: last,
		Signals:              d.Fired,
		UrgencyLevel:         s.UrgencyLevel,
		AssessmentSummary:    s.AssessmentSummary,
		History:              c.history(s),
	})
	if err != nil {
		kind := llm.KindOf(err)
		if kind == "" {
			kind = llm.FailureUpstream
		}
		log.Printf("[%s] llm fallback to rules: %v", s.ID, err)
		c.recorder.LLMOutcome(string(kind))
		return fallback
	}
	c.recorder.LLMOutcome("ok")
	return reply
}

// history returns recent transcript lines before the current utterance.
func (c *Counselor) history(s *Session) []llm.Turn {
	entries := s.Transcript
	if len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}
	if n := c.policy.HistoryEntries; len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	turns := make([]llm.Turn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, llm.Turn{Role: string(e.Role), Text: e.Text})
	}
	return turns
}

// applyCaps completes the session once a turn budget is spent, appending the
// farewell to the turn's reply.
func (c *Counselor) applyCaps(s *Session, reply string) string {
	if s.State == StateComplete || s.State == StateEmergency {
		return reply
	}
	capped := s.TurnCount >= c.policy.GlobalTurnCap
	switch s.State {
	case StateAssessment:
		capped = capped || s.TurnCount >= c.policy.AssessmentTurnCap
	case StateConsultation:
		capped = capped || s.ConsultationTurns >= c.policy.ConsultationTurnCap
	}
	if !capped {
		return reply
	}
	s.State = StateComplete
	return reply + "\n\n" + Farewell(s.UrgencyLevel)
}

func routeLabel(d router.Decision) string {
	switch {
	case d.TooShort:
		return RouteTooShort
	case d.EmergencyBlock:
		return RouteEmergencyBlock
	case d.UseLanguageModel:
		return RouteLLM
	default:
		return RouteRules
	}
}

type choice struct {
	digit string
	words []string
}

var (
	assessmentChoice   = choice{digit: "1", words: []string{"첫번째", "첫 번째", "일번", "체크", "checklist", "피해 확인", "피해 상황"}}
	consultationChoice = choice{digit: "2", words: []string{"두번째", "두 번째", "상담", "대화", "이야기", "talk"}}
)

func detectMode(text string) Mode {
	lower := strings.ToLower(text)
	if assessmentChoice.matches(lower) {
		return ModeAssessment
	}
	if consultationChoice.matches(lower) {
		return ModeConsultation
	}
	return ModeUnselected
}

// matches accepts the digit only as a whole number token ("1", "1번",
// "1번이요") so that hotline numbers like 132 never select a mode.
func (ch choice) matches(text string) bool {
	for _, f := range strings.Fields(text) {
		end := strings.IndexFunc(f, func(r rune) bool { return !unicode.IsDigit(r) })
		if end < 0 {
			end = len(f)
		}
		if f[:end] != ch.digit {
			continue
		}
		rest := f[end:]
		if rest == "" || strings.HasPrefix(rest, "번") || !unicode.IsLetter([]rune(rest)[0]) {
			return true
		}
	}
	for _, w := range ch.words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
