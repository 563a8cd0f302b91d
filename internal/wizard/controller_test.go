package wizard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock 手动推进的时钟，回调在 Advance 的调用方 goroutine 中执行
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

var threeSteps = []StepDefinition{
	{Key: "one", Title: "One", InputComponentID: "OneInput"},
	{Key: "two", Title: "Two", InputComponentID: "TwoInput"},
	{Key: "three", Title: "Three", InputComponentID: "ThreeInput"},
}

const delay = 350 * time.Millisecond

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	opts = append([]Option{WithClock(clock), WithTransitionDelay(delay)}, opts...)
	c, err := NewController(threeSteps, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, clock
}

// advanceTo 在有效的前提下走完一次完整切换
func advanceTo(t *testing.T, c *Controller, clock *fakeClock) {
	t.Helper()
	c.ReportValidity(true)
	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeTransition, outcome)
	clock.Advance(2 * delay)
	require.Equal(t, PhaseIdle, c.State().Phase)
}

func TestNewControllerRequiresSteps(t *testing.T) {
	_, err := NewController(nil)
	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestInitialState(t *testing.T) {
	c, _ := newTestController(t)

	s := c.State()
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Empty(t, s.Data)
	assert.False(t, s.Valid)
	assert.Equal(t, NoRejection, s.LastRejected)
	assert.False(t, s.Completed)
	assert.Equal(t, "one", c.CurrentStep().Key)
}

func TestRequestNextRejectsInvalidStep(t *testing.T) {
	c, clock := newTestController(t)

	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)

	s := c.State()
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, 0, s.LastRejected)
	assert.True(t, s.Rejected())
	assert.Zero(t, clock.Pending())
}

func TestRequestNextRunsExitThenEnter(t *testing.T) {
	c, clock := newTestController(t)
	c.ReportValidity(true)

	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeTransition, outcome)

	s := c.State()
	assert.Equal(t, PhaseExiting, s.Phase)
	assert.Equal(t, 0, s.Index, "index changes only after the exit delay")

	clock.Advance(delay)
	s = c.State()
	assert.Equal(t, PhaseEntering, s.Phase)
	assert.Equal(t, 1, s.Index)
	assert.False(t, s.Valid, "new step starts invalid until reported")
	assert.Equal(t, NoRejection, s.LastRejected)

	clock.Advance(delay)
	assert.Equal(t, PhaseIdle, c.State().Phase)
	assert.Zero(t, clock.Pending())
}

func TestRequestsIgnoredWhileTransitioning(t *testing.T) {
	c, clock := newTestController(t)
	c.ReportValidity(true)

	first, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeTransition, first)

	second, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, second)
	assert.Equal(t, OutcomeIgnored, c.RequestPrevious())

	clock.Advance(delay)
	c.ReportValidity(true)
	third, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, third, "entering phase is not idle")

	clock.Advance(delay)
	assert.Equal(t, 1, c.State().Index)
}

func TestRequestPrevious(t *testing.T) {
	c, clock := newTestController(t)

	assert.Equal(t, OutcomeNoop, c.RequestPrevious())
	assert.Equal(t, PhaseIdle, c.State().Phase)

	advanceTo(t, c, clock)
	require.False(t, c.State().Valid)

	// 后退不检查有效性
	assert.Equal(t, OutcomeTransition, c.RequestPrevious())
	clock.Advance(2 * delay)
	s := c.State()
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, PhaseIdle, s.Phase)
}

func TestRejectionClearedAfterNavigation(t *testing.T) {
	c, clock := newTestController(t)

	_, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	require.True(t, c.State().Rejected())

	advanceTo(t, c, clock)
	s := c.State()
	assert.Equal(t, NoRejection, s.LastRejected)
	assert.False(t, s.Rejected())
}

func TestUpdateDataMergesAndOverwrites(t *testing.T) {
	c, _ := newTestController(t)

	c.UpdateData(map[string]any{"email": "a@x.io", "name": "A"})
	c.UpdateData(map[string]any{"email": "b@x.io"})

	data := c.State().Data
	assert.Equal(t, "b@x.io", data["email"])
	assert.Equal(t, "A", data["name"])
}

func TestSnapshotDataIsCopy(t *testing.T) {
	c, _ := newTestController(t)
	c.UpdateData(map[string]any{"k": "v"})

	s := c.State()
	s.Data["k"] = "mutated"
	assert.Equal(t, "v", c.State().Data["k"])
}

func TestValidatorRecomputesOnUpdateAndEnter(t *testing.T) {
	validator := func(index int, step StepDefinition, data OnboardingData) bool {
		v, _ := data[step.Key].(string)
		return v != ""
	}
	c, clock := newTestController(t, WithValidator(validator))
	assert.False(t, c.State().Valid)

	c.UpdateData(map[string]any{"one": "x"})
	assert.True(t, c.State().Valid)

	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeTransition, outcome)
	clock.Advance(delay)
	assert.False(t, c.State().Valid, "step two has no value yet")

	clock.Advance(delay)
	c.UpdateData(map[string]any{"two": "y"})
	assert.True(t, c.State().Valid)
}

func TestCompletionFiresOnce(t *testing.T) {
	var calls atomic.Int32
	var got OnboardingData
	c, clock := newTestController(t, WithOnComplete(func(data OnboardingData) {
		calls.Add(1)
		got = data
	}))

	c.UpdateData(map[string]any{"email": "a@x.io"})
	advanceTo(t, c, clock)
	c.UpdateData(map[string]any{"name": "A"})
	advanceTo(t, c, clock)
	require.Equal(t, 2, c.State().Index)

	c.ReportValidity(true)
	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "a@x.io", got["email"])
	assert.Equal(t, "A", got["name"])
	assert.True(t, c.State().Completed)
	assert.Equal(t, 2, c.State().Index)

	outcome, err = c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAdvanceHookPatchAndFailure(t *testing.T) {
	fail := errors.New("store unavailable")
	var attempts int
	hook := func(ctx context.Context, index int, step StepDefinition, data OnboardingData) (OnboardingData, error) {
		attempts++
		if attempts == 1 {
			return nil, fail
		}
		return OnboardingData{"savedAt": index}, nil
	}
	c, clock := newTestController(t, WithAdvanceHook(hook))
	c.ReportValidity(true)

	outcome, err := c.RequestNext(context.Background())
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, OutcomeFailed, outcome)
	s := c.State()
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, s.Saving)

	outcome, err = c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransition, outcome)
	clock.Advance(2 * delay)
	assert.Equal(t, 1, c.State().Index)
	assert.Equal(t, 0, c.State().Data["savedAt"])
}

func TestRequestsIgnoredWhileSaving(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	hook := func(ctx context.Context, index int, step StepDefinition, data OnboardingData) (OnboardingData, error) {
		close(entered)
		<-release
		return nil, nil
	}
	c, _ := newTestController(t, WithAdvanceHook(hook))
	c.ReportValidity(true)

	done := make(chan Outcome)
	go func() {
		outcome, _ := c.RequestNext(context.Background())
		done <- outcome
	}()

	<-entered
	assert.True(t, c.State().Saving)
	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, OutcomeIgnored, c.RequestPrevious())

	close(release)
	assert.Equal(t, OutcomeTransition, <-done)
}

func TestCloseCancelsPendingTransition(t *testing.T) {
	c, clock := newTestController(t)
	c.ReportValidity(true)

	_, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	c.Close()
	clock.Advance(2 * delay)

	s := c.State()
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, PhaseExiting, s.Phase)

	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestConcurrentRequestNextStartsOneTransition(t *testing.T) {
	c, clock := newTestController(t)
	c.ReportValidity(true)

	var transitions atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if outcome, _ := c.RequestNext(context.Background()); outcome == OutcomeTransition {
				transitions.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), transitions.Load())
	clock.Advance(2 * delay)
	assert.Equal(t, 1, c.State().Index)
}

func TestOnChangeObservesPhases(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	c, clock := newTestController(t, WithOnChange(func(s Snapshot) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	}))

	advanceTo(t, c, clock)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseIdle, PhaseExiting, PhaseEntering, PhaseIdle}, phases)
}

func TestRestoreFromSnapshot(t *testing.T) {
	c, _ := newTestController(t, WithRestore(Snapshot{
		Index:        2,
		Data:         OnboardingData{"email": "a@x.io"},
		Phase:        PhaseExiting,
		LastRejected: 2,
	}))

	s := c.State()
	assert.Equal(t, 2, s.Index)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, "a@x.io", s.Data["email"])
	assert.True(t, s.Rejected())
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for _, p := range []Phase{PhaseIdle, PhaseExiting, PhaseEntering} {
		b, err := p.MarshalText()
		require.NoError(t, err)
		var got Phase
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, p, got)
	}

	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("sliding")))
}

func TestRealClockTransition(t *testing.T) {
	c, err := NewController(threeSteps, WithTransitionDelay(time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	c.ReportValidity(true)
	outcome, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeTransition, outcome)

	require.Eventually(t, func() bool {
		s := c.State()
		return s.Index == 1 && s.Phase == PhaseIdle
	}, time.Second, 5*time.Millisecond)
}
