package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// LengthPolicy decides what happens to replies longer than the cap.
type LengthPolicy int

const (
	Truncate LengthPolicy = iota
	Reject
)

const (
	DefaultTimeout  = 3500 * time.Millisecond
	DefaultMaxRunes = 80
	ellipsis        = "..."
	suggestionFmt   = "%s\n\n다음으로는 '%s'에 대해 물어보실 수 있어요."
)

// Reply is the structured shape the model is asked to produce.
type Reply struct {
	Response       string `json:"response"`
	Suggestion     string `json:"suggestion,omitempty"`
	NextSuggestion string `json:"next_suggestion,omitempty"`
}

// Adapter wraps a Client with a deadline, reply parsing and a length policy.
type Adapter struct {
	client   Client
	timeout  time.Duration
	maxRunes int
	policy   LengthPolicy
}

func NewAdapter(client Client, timeout time.Duration, maxRunes int, policy LengthPolicy) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Adapter{client: client, timeout: timeout, maxRunes: maxRunes, policy: policy}
}

type result struct {
	text string
	err  error
}

// Respond asks the model about text. Every error it returns is a *Failure.
// It returns as soon as ctx or the adapter deadline expires, without waiting
// for a late reply.
func (a *Adapter) Respond(ctx context.Context, text string, c Context) (string, error) {
	if a == nil || a.client == nil {
		return "", fail(FailureUnavailable, errors.New("no client configured"))
	}
	strategy := strategyFor(c.Signals)
	prompt := BuildPrompt(strategy, text, c)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fail(FailureUpstream, fmt.Errorf("client panic: %v", rec))}
			}
		}()
		out, err := a.client.Generate(ctx, prompt)
		done <- result{text: out, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", fail(FailureTimeout, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		if KindOf(res.err) != "" {
			return "", res.err
		}
		if ctx.Err() != nil || errors.Is(res.err, context.DeadlineExceeded) {
			return "", fail(FailureTimeout, res.err)
		}
		return "", fail(FailureUpstream, res.err)
	}

	reply, err := ParseReply(res.text)
	if err != nil {
		return "", fail(FailureInvalidResponse, err)
	}
	if !strategy.Valid(reply.Response) {
		return "", fail(FailureInvalidResponse, fmt.Errorf("%s reply rejected: %q", strategy.Name(), reply.Response))
	}
	return a.present(reply)
}

func (a *Adapter) present(r Reply) (string, error) {
	out := r.Response
	suggestion := r.Suggestion
	if suggestion == "" {
		suggestion = r.NextSuggestion
	}
	if suggestion != "" {
		out = fmt.Sprintf(suggestionFmt, out, suggestion)
	}
	if utf8.RuneCountInString(out) <= a.maxRunes {
		return out, nil
	}
	if a.policy == Reject {
		return "", fail(FailureInvalidResponse, fmt.Errorf("reply has %d runes, cap %d", utf8.RuneCountInString(out), a.maxRunes))
	}
	return TruncateRunes(out, a.maxRunes), nil
}

// TruncateRunes cuts s to at most max runes, ending with "..." when cut.
func TruncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(ellipsis)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + ellipsis
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseReply extracts the structured reply from raw model output. The JSON
// may be fenced in a code block or embedded in surrounding prose.
func ParseReply(raw string) (Reply, error) {
	raw = strings.TrimSpace(raw)
	var candidates []string
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := bareJSON.FindString(raw); m != "" {
		candidates = append(candidates, m)
	}
	candidates = append(candidates, raw)

	var lastErr error
	for _, cand := range candidates {
		var r Reply
		if err := json.Unmarshal([]byte(cand), &r); err != nil {
			lastErr = err
			continue
		}
		r.Response = strings.TrimSpace(r.Response)
		if r.Response == "" {
			lastErr = errors.New("empty response field")
			continue
		}
		return r, nil
	}
	return Reply{}, fmt.Errorf("unparseable reply: %w", lastErr)
}
