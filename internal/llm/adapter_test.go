package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type fakeClient struct {
	reply  string
	err    error
	delay  time.Duration
	panics bool
	prompt string
}

func (f *fakeClient) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

// stubbornClient ignores cancellation entirely.
type stubbornClient struct{ release chan struct{} }

func (s stubbornClient) Generate(context.Context, string) (string, error) {
	<-s.release
	return `{"response":"late"}`, nil
}

func TestRespond_Success(t *testing.T) {
	c := &fakeClient{reply: "```json\n{\"response\": \"132번은 무료 법률상담입니다.\"}\n```"}
	a := NewAdapter(c, time.Second, 80, Truncate)
	out, err := a.Respond(context.Background(), "132번이 뭐예요?", Context{Signals: []string{"complexity"}})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if out != "132번은 무료 법률상담입니다." {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(c.prompt, "설명을 요청했습니다") {
		t.Fatalf("expected explanation strategy prompt, got %q", c.prompt)
	}
}

func TestRespond_SuggestionFormatting(t *testing.T) {
	c := &fakeClient{reply: `{"response":"은행에 지급정지를 요청하세요.","next_suggestion":"환급 절차"}`}
	a := NewAdapter(c, time.Second, 200, Truncate)
	out, err := a.Respond(context.Background(), "그거 말고 다른 방법은요", Context{Signals: []string{"context_mismatch"}, LastAssistantMessage: "132번"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	want := "은행에 지급정지를 요청하세요.\n\n다음으로는 '환급 절차'에 대해 물어보실 수 있어요."
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
	if !strings.Contains(c.prompt, `"132번"`) {
		t.Fatalf("alternative prompt should quote the last answer: %q", c.prompt)
	}
}

func TestRespond_LengthPolicies(t *testing.T) {
	long := strings.Repeat("가", 120)
	c := &fakeClient{reply: `{"response":"` + long + `?"}`}

	out, err := NewAdapter(c, time.Second, 80, Truncate).Respond(context.Background(), "모르겠어요", Context{})
	if err != nil {
		t.Fatalf("truncate policy: %v", err)
	}
	if utf8.RuneCountInString(out) != 80 || !strings.HasSuffix(out, "...") {
		t.Fatalf("expected 80 runes ending in ellipsis, got %d %q", utf8.RuneCountInString(out), out)
	}

	_, err = NewAdapter(c, time.Second, 80, Reject).Respond(context.Background(), "모르겠어요", Context{})
	if KindOf(err) != FailureInvalidResponse {
		t.Fatalf("reject policy should fail with invalid response, got %v", err)
	}
}

func TestRespond_Failures(t *testing.T) {
	cases := []struct {
		name   string
		client Client
		want   FailureKind
	}{
		{"malformed", &fakeClient{reply: "죄송합니다, 잘 모르겠어요"}, FailureInvalidResponse},
		{"empty response field", &fakeClient{reply: `{"response":"  "}`}, FailureInvalidResponse},
		{"strategy rejects", &fakeClient{reply: `{"response":"네 알겠습니다"}`}, FailureInvalidResponse},
		{"upstream error", &fakeClient{err: errors.New("503")}, FailureUpstream},
		{"panic", &fakeClient{panics: true}, FailureUpstream},
		{"slow", &fakeClient{reply: `{"response":"늦음?"}`, delay: time.Second}, FailureTimeout},
		{"nil client", nil, FailureUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAdapter(tc.client, 30*time.Millisecond, 80, Truncate)
			out, err := a.Respond(context.Background(), "잘 모르겠어요", Context{Signals: []string{"dissatisfaction"}})
			if out != "" {
				t.Fatalf("no text expected on failure, got %q", out)
			}
			var f *Failure
			if !errors.As(err, &f) || f.Kind != tc.want {
				t.Fatalf("expected %s failure, got %v", tc.want, err)
			}
		})
	}
}

func TestRespond_DoesNotWaitForLateReply(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := NewAdapter(stubbornClient{release: release}, 20*time.Millisecond, 80, Truncate)
	start := time.Now()
	_, err := a.Respond(context.Background(), "왜요?", Context{})
	if KindOf(err) != FailureTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("adapter blocked on a late reply")
	}
}

func TestRespond_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewAdapter(&fakeClient{reply: `{"response":"x?"}`, delay: time.Second}, time.Second, 80, Truncate)
	if _, err := a.Respond(ctx, "뭐예요", Context{}); KindOf(err) != FailureTimeout {
		t.Fatalf("cancelled parent should map to timeout, got %v", err)
	}
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`{"response":"a"}`, "a", false},
		{"설명입니다 {\"response\":\"b\",\"next_suggestion\":\"c\"} 끝", "b", false},
		{"```\n{\"response\":\"d\"}\n```", "d", false},
		{`{"answer":"x"}`, "", true},
		{"plain text", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		r, err := ParseReply(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseReply(%q) err=%v wantErr=%v", tc.in, err, tc.wantErr)
		}
		if r.Response != tc.want {
			t.Fatalf("ParseReply(%q) = %q want %q", tc.in, r.Response, tc.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("짧은 답", 80); got != "짧은 답" {
		t.Fatalf("short text must be untouched, got %q", got)
	}
	got := TruncateRunes(strings.Repeat("나", 100), 80)
	if utf8.RuneCountInString(got) != 80 || got != strings.Repeat("나", 77)+"..." {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestBuildPrompt_IncludesContext(t *testing.T) {
	p := BuildPrompt(clarification{}, "음", Context{
		UrgencyLevel:      7,
		AssessmentSummary: "우선순위 조치:\n1. 112번 신고",
		History:           []Turn{{Role: "user", Text: "안녕"}, {Role: "assistant", Text: "네 말씀하세요"}},
	})
	for _, want := range []string{"[체크리스트 결과]", "1. 112번 신고", "[USER] 안녕", "[ASSISTANT] 네 말씀하세요", "긴급도: 7/10", `"음"`} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}
