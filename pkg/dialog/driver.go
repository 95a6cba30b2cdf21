package dialog

import (
	"context"
	"fmt"
)

// Classification tells the orchestrator whether a driver failure may be retried.
type Classification int

const (
	// Recoverable failures are retried with backoff, up to Config.MaxRetries per round.
	Recoverable Classification = iota + 1
	// Unrecoverable failures end the exchange immediately.
	Unrecoverable
)

func (c Classification) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// OutcomeKind categorizes what a driver decided.
type OutcomeKind int

const (
	// OutcomeProduce supplies the next user-side message.
	OutcomeProduce OutcomeKind = iota + 1
	// OutcomeDone ends the exchange without another model turn.
	OutcomeDone
	// OutcomeFail reports a classified failure.
	OutcomeFail
)

// String returns human-readable name for OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProduce:
		return "Produce"
	case OutcomeDone:
		return "Done"
	case OutcomeFail:
		return "Fail"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one Driver.Next call. Build it with Produce, Done or Fail.
type Outcome struct {
	Message        Message
	Detail         string
	Kind           OutcomeKind
	Classification Classification
}

// Produce returns an outcome that appends msg as the next turn.
// An empty role is treated as RoleUser.
func Produce(msg Message) Outcome {
	return Outcome{Kind: OutcomeProduce, Message: msg}
}

// Say is shorthand for Produce(UserMessage(content)).
func Say(content string) Outcome {
	return Produce(UserMessage(content))
}

// Done returns an outcome that ends the exchange.
func Done() Outcome {
	return Outcome{Kind: OutcomeDone}
}

// Fail returns a classified failure with a diagnostic detail.
func Fail(class Classification, detail string) Outcome {
	return Outcome{Kind: OutcomeFail, Classification: class, Detail: detail}
}

// Failf is Fail with a formatted detail.
func Failf(class Classification, format string, args ...any) Outcome {
	return Fail(class, fmt.Sprintf(format, args...))
}

// Driver decides what the user side of the conversation says next.
//
// Next receives a read-only copy of the conversation so far, which is empty on the
// first call. After a recoverable failure Next is called again with the same
// conversation.
type Driver interface {
	Next(ctx context.Context, dialog []Message) Outcome
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, dialog []Message) Outcome

// Next calls f.
func (f DriverFunc) Next(ctx context.Context, dialog []Message) Outcome {
	return f(ctx, dialog)
}
