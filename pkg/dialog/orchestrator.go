package dialog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"llmdialog/pkg/logx"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for retry and failure messages.
func WithLogger(l *logx.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an Observer for exchange events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithIDGenerator replaces the exchange ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// Orchestrator alternates driver and model turns until the driver is done or a
// failure ends the exchange. An Orchestrator runs one exchange at a time; distinct
// orchestrators share nothing and may run concurrently.
type Orchestrator struct {
	driver   Driver
	model    Model
	cfg      Config
	backoff  Backoff
	logger   *logx.Logger
	observer Observer
	sleep    Sleeper
	newID    func() string

	running atomic.Bool

	mu          sync.Mutex
	state       State
	transitions []StateTransition
}

// New creates an orchestrator. cfg is validated and fixed for the orchestrator's lifetime.
func New(driver Driver, model Model, cfg Config, opts ...Option) (*Orchestrator, error) {
	if driver == nil {
		return nil, errors.New("dialog: driver is required")
	}
	if model == nil {
		return nil, errors.New("dialog: model is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dialog: invalid config: %w", err)
	}

	o := &Orchestrator{
		driver:   driver,
		model:    model,
		cfg:      cfg,
		backoff:  cfg.Backoff(),
		logger:   logx.NewLogger("dialog"),
		observer: NopObserver{},
		sleep:    Sleep,
		newID:    newExchangeID,
		state:    StateAwaitingDriver,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func newExchangeID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// State returns the current state of the most recent exchange.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Transitions returns the state history of the most recent exchange.
func (o *Orchestrator) Transitions() []StateTransition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.transitions)
}

// Run executes one exchange starting from an empty conversation. On success it returns
// the completed conversation, which the caller then owns. On failure it returns a
// *ExchangeError and, unless Config.KeepPartial is set, no conversation.
//
// Run returns ErrExchangeInProgress if another Run on o has not returned yet.
func (o *Orchestrator) Run(ctx context.Context) (*Conversation, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrExchangeInProgress
	}
	defer o.running.Store(false)

	id := o.newID()
	x := &exchange{
		o:      o,
		id:     id,
		ctx:    logx.WithID(ctx, id),
		logger: o.logger.With("exchange", id),
		conv:   &Conversation{},
		round:  1,
	}

	o.mu.Lock()
	o.state = StateAwaitingDriver
	o.transitions = o.transitions[:0]
	o.mu.Unlock()

	start := time.Now()
	o.observer.ExchangeStarted(id)
	logx.DebugFlow(x.ctx, "dialog", "exchange", "started")

	conv, err := x.run()

	elapsed := time.Since(start)
	o.observer.ExchangeFinished(id, x.completed, elapsed, err)
	if err == nil {
		x.logger.Info("exchange completed: %d rounds, %d messages in %s", x.completed, conv.Len(), elapsed)
	}
	return conv, err
}

// exchange holds the per-run state. It is never shared.
type exchange struct {
	o      *Orchestrator
	id     string
	ctx    context.Context //nolint:containedctx // scoped to one Run call
	logger *logx.Logger
	conv   *Conversation

	round     int // 1-based
	retry     int // retries taken in this round
	attempts  int // driver invocations in this round
	completed int // rounds that received a model reply
	detail    string
	err       *ExchangeError
}

func (x *exchange) run() (*Conversation, error) {
	state := StateAwaitingDriver
	for !state.Terminal() {
		var next State
		switch state {
		case StateAwaitingDriver:
			next = x.awaitDriver()
		case StateRetryingDriver:
			next = x.retryDriver()
		case StateAwaitingModel:
			next = x.awaitModel()
		default:
			panic(fmt.Sprintf("dialog: unexpected state %s", state))
		}
		x.transition(state, next)
		state = next
	}

	if state == StateFailed {
		return nil, x.err
	}
	return x.conv, nil
}

func (x *exchange) transition(from, to State) {
	x.o.mu.Lock()
	x.o.state = to
	x.o.transitions = append(x.o.transitions, StateTransition{
		FromState: from,
		ToState:   to,
		Round:     x.round,
		Attempt:   x.retry,
		Timestamp: time.Now(),
	})
	x.o.mu.Unlock()

	logx.Debug(x.ctx, "dialog", "state %s -> %s (round %d, retry %d)", from, to, x.round, x.retry)
}

func (x *exchange) awaitDriver() State {
	if err := x.ctx.Err(); err != nil {
		return x.fail(KindCanceled, err)
	}

	x.attempts++
	out := x.o.driver.Next(x.ctx, x.conv.Messages())

	switch out.Kind {
	case OutcomeProduce:
		msg := out.Message
		if msg.Role == "" {
			msg.Role = RoleUser
		}
		if !msg.Role.Valid() {
			x.detail = fmt.Sprintf("driver produced a message with unknown role %q", msg.Role)
			return x.fail(KindDriverUnrecoverable, nil)
		}
		x.conv.Append(msg)
		return StateAwaitingModel

	case OutcomeDone:
		return StateCompleted

	case OutcomeFail:
		x.detail = out.Detail
		if ctxErr := x.ctx.Err(); ctxErr != nil {
			return x.fail(KindCanceled, ctxErr)
		}
		if out.Classification == Recoverable {
			return StateRetryingDriver
		}
		return x.fail(KindDriverUnrecoverable, nil)

	default:
		x.detail = fmt.Sprintf("driver returned invalid outcome %s", out.Kind)
		return x.fail(KindDriverUnrecoverable, nil)
	}
}

func (x *exchange) retryDriver() State {
	if x.retry >= x.o.cfg.MaxRetries {
		return x.fail(KindRetriesExhausted, nil)
	}

	delay := x.o.backoff.Delay(x.retry)
	x.retry++
	x.logger.Warn("driver failed (round %d, attempt %d): %s; retry %d/%d in %s",
		x.round, x.attempts, x.detail, x.retry, x.o.cfg.MaxRetries, delay)
	x.o.observer.DriverRetry(x.id, x.round, x.retry, delay)

	if err := x.o.sleep(x.ctx, delay); err != nil {
		return x.fail(KindCanceled, err)
	}
	return StateAwaitingDriver
}

func (x *exchange) awaitModel() State {
	if err := x.ctx.Err(); err != nil {
		return x.fail(KindCanceled, err)
	}

	start := time.Now()
	reply, err := x.o.model.Complete(x.ctx, x.conv.Messages(), x.o.cfg.Params())
	x.o.observer.ModelCompleted(x.id, x.round, time.Since(start), err)

	if err != nil {
		if ctxErr := x.ctx.Err(); ctxErr != nil {
			return x.fail(KindCanceled, ctxErr)
		}
		return x.fail(KindModel, err)
	}

	x.conv.Append(AssistantMessage(reply))
	x.completed++
	x.round++
	x.retry = 0
	x.attempts = 0
	x.detail = ""
	return StateAwaitingDriver
}

func (x *exchange) fail(kind ErrorKind, cause error) State {
	exErr := &ExchangeError{
		Kind:     kind,
		Round:    x.round,
		Attempts: x.attempts,
		Err:      cause,
	}
	if kind == KindDriverUnrecoverable || kind == KindRetriesExhausted {
		exErr.Detail = x.detail
	}
	if x.o.cfg.KeepPartial {
		exErr.Partial = NewConversation(x.conv.Messages()...)
	}
	x.err = exErr

	if kind == KindCanceled {
		x.logger.Warn("%s", exErr.Error())
	} else {
		x.logger.Error("%s", exErr.Error())
	}
	return StateFailed
}
