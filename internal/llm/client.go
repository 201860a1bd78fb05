package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client is the minimal language-model contract: one prompt, one reply.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// FailureKind classifies why the adapter could not produce a reply.
type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureUnavailable     FailureKind = "unavailable"
	FailureUpstream        FailureKind = "upstream"
)

// Failure is the only error type Adapter.Respond returns.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "llm: " + string(f.Kind)
	}
	return fmt.Sprintf("llm: %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind of err, or "" if err is not a *Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func fail(kind FailureKind, err error) *Failure { return &Failure{Kind: kind, Err: err} }
