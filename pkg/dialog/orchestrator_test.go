package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDriver replays outcomes in order and repeats the last one forever.
type scriptedDriver struct {
	outcomes []Outcome
	seen     [][]Message
}

func (d *scriptedDriver) Next(_ context.Context, dialog []Message) Outcome {
	d.seen = append(d.seen, dialog)
	i := min(len(d.seen)-1, len(d.outcomes)-1)
	return d.outcomes[i]
}

func (d *scriptedDriver) calls() int { return len(d.seen) }

// fakeModel replies from a list and records what it was asked.
type fakeModel struct {
	replies []string
	err     error
	seen    [][]Message
	params  []ModelParams
}

func (m *fakeModel) Complete(_ context.Context, dialog []Message, params ModelParams) (string, error) {
	m.seen = append(m.seen, dialog)
	m.params = append(m.params, params)
	if m.err != nil {
		return "", m.err
	}
	i := min(len(m.seen)-1, len(m.replies)-1)
	return m.replies[i], nil
}

func (m *fakeModel) calls() int { return len(m.seen) }

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestOrchestrator(t *testing.T, d Driver, m Model, cfg Config, opts ...Option) (*Orchestrator, *recordingSleeper) {
	t.Helper()
	sleeper := &recordingSleeper{}
	opts = append([]Option{WithSleeper(sleeper.sleep)}, opts...)
	o, err := New(d, m, cfg, opts...)
	require.NoError(t, err)
	return o, sleeper
}

func TestScenarioSingleRound(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Say("hello"), Done()}}
	model := &fakeModel{replies: []string{"hi"}}
	o, _ := newTestOrchestrator(t, driver, model, DefaultConfig())

	conv, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Message{UserMessage("hello"), AssistantMessage("hi")}, conv.Messages())
	assert.Equal(t, StateCompleted, o.State())
}

func TestScenarioTwoRounds(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Say("a"), Say("b"), Done()}}
	model := &fakeModel{replies: []string{"r1", "r2"}}
	o, _ := newTestOrchestrator(t, driver, model, DefaultConfig())

	conv, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Message{
		UserMessage("a"), AssistantMessage("r1"),
		UserMessage("b"), AssistantMessage("r2"),
	}, conv.Messages())
}

func TestScenarioRetriesExhausted(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Fail(Recoverable, "not ready")}}
	model := &fakeModel{replies: []string{"unused"}}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BaseDelay = 10 * time.Millisecond
	o, sleeper := newTestOrchestrator(t, driver, model, cfg)

	conv, err := o.Run(context.Background())

	assert.Nil(t, conv)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, driver.calls())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.delays)
	assert.Equal(t, "driver retries exhausted after 3 attempts (round 1): not ready", err.Error())
	assert.Equal(t, StateFailed, o.State())
}

func TestGrowthPerRound(t *testing.T) {
	prompts := []string{"one", "two", "three", "four"}
	outcomes := make([]Outcome, 0, len(prompts)+1)
	for _, p := range prompts {
		outcomes = append(outcomes, Say(p))
	}
	outcomes = append(outcomes, Done())

	driver := &scriptedDriver{outcomes: outcomes}
	model := &fakeModel{replies: []string{"ok"}}
	o, _ := newTestOrchestrator(t, driver, model, DefaultConfig())

	conv, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2*len(prompts), conv.Len())
	for i, seen := range driver.seen {
		assert.Len(t, seen, 2*i, "driver call %d", i)
	}
	for i, seen := range model.seen {
		assert.Len(t, seen, 2*i+1, "model call %d", i)
	}
}

func TestDoneOnEmptyConversation(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Done()}}
	model := &fakeModel{replies: []string{"unused"}}
	o, _ := newTestOrchestrator(t, driver, model, DefaultConfig())

	conv, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, conv.Len())
	assert.Equal(t, 0, model.calls())
	assert.Empty(t, driver.seen[0])
}

func TestRetryBoundAndBackoff(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Fail(Recoverable, "flaky")}}
	model := &fakeModel{replies: []string{"unused"}}
	o, sleeper := newTestOrchestrator(t, driver, model, DefaultConfig())

	_, err := o.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, DefaultMaxRetries+1, driver.calls())
	assert.Equal(t, 0, model.calls())
	require.Len(t, sleeper.delays, DefaultMaxRetries)
	for k := 1; k <= DefaultMaxRetries; k++ {
		assert.Equal(t, DefaultBaseDelay<<(k-1), sleeper.delays[k-1], "retry %d", k)
	}

	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, KindRetriesExhausted, exErr.Kind)
	assert.Equal(t, 1, exErr.Round)
	assert.Equal(t, DefaultMaxRetries+1, exErr.Attempts)
	assert.Equal(t, "flaky", exErr.Detail)
}

func TestRetriedDriverSeesSameConversation(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{
		Say("a"),
		Fail(Recoverable, "hiccup"),
		Fail(Recoverable, "hiccup"),
		Say("b"),
		Done(),
	}}
	model := &fakeModel{replies: []string{"r1", "r2"}}
	o, sleeper := newTestOrchestrator(t, driver, model, DefaultConfig())

	conv, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, conv.Len())
	assert.Equal(t, driver.seen[1], driver.seen[2])
	assert.Equal(t, driver.seen[1], driver.seen[3])
	assert.Len(t, sleeper.delays, 2)
}

func TestModelErrorIsNotRetried(t *testing.T) {
	modelErr := errors.New("service unavailable after 6 attempts")
	driver := &scriptedDriver{outcomes: []Outcome{Say("hello")}}
	model := &fakeModel{err: modelErr}
	o, sleeper := newTestOrchestrator(t, driver, model, DefaultConfig())

	conv, err := o.Run(context.Background())

	assert.Nil(t, conv)
	require.ErrorIs(t, err, ErrModel)
	assert.ErrorIs(t, err, modelErr)
	assert.Equal(t, 1, model.calls())
	assert.Equal(t, 1, driver.calls())
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, "model error (round 1): service unavailable after 6 attempts", err.Error())
}

func TestUnrecoverableShortCircuits(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Fail(Unrecoverable, "X")}}
	model := &fakeModel{replies: []string{"unused"}}
	o, sleeper := newTestOrchestrator(t, driver, model, DefaultConfig())

	_, err := o.Run(context.Background())

	require.ErrorIs(t, err, ErrDriverUnrecoverable)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, "driver unrecoverable (round 1): X", err.Error())
	assert.Equal(t, 1, driver.calls())
	assert.Equal(t, 0, model.calls())
	assert.Empty(t, sleeper.delays)
}

func TestRetryBudgetResetsEachRound(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{
		Fail(Recoverable, "first"),
		Say("a"),
		Fail(Recoverable, "second"),
		Say("b"),
		Done(),
	}}
	model := &fakeModel{replies: []string{"r"}}
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	o, sleeper := newTestOrchestrator(t, driver, model, cfg)

	conv, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, conv.Len())
	assert.Equal(t, []time.Duration{DefaultBaseDelay, DefaultBaseDelay}, sleeper.delays)
}

func TestZeroRetriesFailsOnFirstRecoverable(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Fail(Recoverable, "nope")}}
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	o, sleeper := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"x"}}, cfg)

	_, err := o.Run(context.Background())

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, driver.calls())
	assert.Empty(t, sleeper.delays)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestFailureInLaterRoundReportsRound(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Say("a"), Say("b"), Fail(Unrecoverable, "bad input")}}
	o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"r"}}, DefaultConfig())

	_, err := o.Run(context.Background())

	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, 3, exErr.Round)
	assert.Nil(t, exErr.Partial)
}

func TestKeepPartial(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Say("a"), Fail(Unrecoverable, "stop")}}
	cfg := DefaultConfig()
	cfg.KeepPartial = true
	o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"r1"}}, cfg)

	conv, err := o.Run(context.Background())

	assert.Nil(t, conv)
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.NotNil(t, exErr.Partial)
	assert.Equal(t, []Message{UserMessage("a"), AssistantMessage("r1")}, exErr.Partial.Messages())
}

func TestProduceRoles(t *testing.T) {
	t.Run("empty role defaults to user", func(t *testing.T) {
		driver := &scriptedDriver{outcomes: []Outcome{Produce(Message{Content: "hi"}), Done()}}
		o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"yo"}}, DefaultConfig())

		conv, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, RoleUser, conv.Messages()[0].Role)
	})

	t.Run("system role accepted", func(t *testing.T) {
		driver := &scriptedDriver{outcomes: []Outcome{Produce(SystemMessage("be brief")), Done()}}
		o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"ok"}}, DefaultConfig())

		conv, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, RoleSystem, conv.Messages()[0].Role)
	})

	t.Run("unknown role is unrecoverable", func(t *testing.T) {
		driver := &scriptedDriver{outcomes: []Outcome{Produce(Message{Role: "tool", Content: "x"})}}
		model := &fakeModel{replies: []string{"unused"}}
		o, _ := newTestOrchestrator(t, driver, model, DefaultConfig())

		_, err := o.Run(context.Background())
		require.ErrorIs(t, err, ErrDriverUnrecoverable)
		assert.Contains(t, err.Error(), `unknown role "tool"`)
		assert.Equal(t, 0, model.calls())
	})

	t.Run("zero outcome is unrecoverable", func(t *testing.T) {
		driver := &scriptedDriver{outcomes: []Outcome{{}}}
		o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"unused"}}, DefaultConfig())

		_, err := o.Run(context.Background())
		require.ErrorIs(t, err, ErrDriverUnrecoverable)
	})
}

func TestParamsPassedThrough(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Say("a"), Done()}}
	model := &fakeModel{replies: []string{"r"}}
	cfg := DefaultConfig()
	cfg.Model = "deepseek-reasoner"
	cfg.MaxTokens = 512
	cfg.Temperature = 1.2
	o, _ := newTestOrchestrator(t, driver, model, cfg)

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, model.params, 1)
	assert.Equal(t, ModelParams{Model: "deepseek-reasoner", MaxTokens: 512, Temperature: 1.2}, model.params[0])
}

func TestCancelDuringBackoff(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Fail(Recoverable, "wait")}}
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	o, err := New(driver, &fakeModel{replies: []string{"x"}}, DefaultConfig(), WithSleeper(sleeper))
	require.NoError(t, err)

	_, err = o.Run(ctx)

	require.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, driver.calls())
	assert.Equal(t, "exchange canceled (round 1): context canceled", err.Error())
}

func TestCanceledModelCallReportsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	driver := &scriptedDriver{outcomes: []Outcome{Say("a")}}
	model := ModelFunc(func(ctx context.Context, _ []Message, _ ModelParams) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	o, _ := newTestOrchestrator(t, driver, model, DefaultConfig())

	_, err := o.Run(ctx)

	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestDriverFailingOnCancelReportsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	driver := DriverFunc(func(ctx context.Context, _ []Message) Outcome {
		cancel()
		<-ctx.Done()
		return Failf(Unrecoverable, "input aborted: %v", ctx.Err())
	})
	o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"x"}}, DefaultConfig())

	_, err := o.Run(ctx)

	require.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, o.State())
}

func TestDefaultSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestConcurrentRunRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	driver := DriverFunc(func(context.Context, []Message) Outcome {
		once.Do(func() { close(entered) })
		<-release
		return Done()
	})
	o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"x"}}, DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background())
		done <- err
	}()

	<-entered
	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrExchangeInProgress)

	close(release)
	require.NoError(t, <-done)

	// Sequential reuse starts from an empty conversation again.
	conv, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, conv.Len())
}

func TestTransitionsRecorded(t *testing.T) {
	driver := &scriptedDriver{outcomes: []Outcome{Fail(Recoverable, "x"), Say("hello"), Done()}}
	o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"hi"}}, DefaultConfig())

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	var path []State
	for _, tr := range o.Transitions() {
		path = append(path, tr.ToState)
	}
	assert.Equal(t, []State{
		StateRetryingDriver,
		StateAwaitingDriver,
		StateAwaitingModel,
		StateAwaitingDriver,
		StateCompleted,
	}, path)

	transitions := o.Transitions()
	assert.Equal(t, 1, transitions[0].Round)
	assert.Equal(t, 2, transitions[len(transitions)-1].Round)
}

type recordingObserver struct {
	mu       sync.Mutex
	events   []string
	rounds   int
	finalErr error
}

func (r *recordingObserver) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) ExchangeStarted(string) { r.add("start") }
func (r *recordingObserver) DriverRetry(string, int, int, time.Duration) { r.add("retry") }
func (r *recordingObserver) ModelCompleted(string, int, time.Duration, error) { r.add("model") }

func (r *recordingObserver) ExchangeFinished(_ string, rounds int, _ time.Duration, err error) {
	r.add("finish")
	r.rounds = rounds
	r.finalErr = err
}

func TestObserverAndExchangeID(t *testing.T) {
	obs := &recordingObserver{}
	driver := &scriptedDriver{outcomes: []Outcome{Fail(Recoverable, "x"), Say("a"), Say("b"), Done()}}
	o, _ := newTestOrchestrator(t, driver, &fakeModel{replies: []string{"r"}}, DefaultConfig(),
		WithObserver(obs), WithIDGenerator(func() string { return "ex-42" }))

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "retry", "model", "model", "finish"}, obs.events)
	assert.Equal(t, 2, obs.rounds)
	assert.NoError(t, obs.finalErr)
}

func TestDefaultExchangeIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newExchangeID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestNewValidates(t *testing.T) {
	model := &fakeModel{replies: []string{"x"}}
	driver := &scriptedDriver{outcomes: []Outcome{Done()}}

	_, err := New(nil, model, DefaultConfig())
	assert.Error(t, err)
	_, err = New(driver, nil, DefaultConfig())
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.MaxRetries = -1
	_, err = New(driver, model, bad)
	assert.ErrorContains(t, err, "max retries")

	o, err := New(driver, model, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), o.Config())
	assert.Empty(t, o.Transitions())
}
