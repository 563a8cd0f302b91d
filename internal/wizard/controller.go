package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTransitionDelay 离场/入场动画各自的时长
const DefaultTransitionDelay = 350 * time.Millisecond

// NoRejection 表示没有被拒绝的步骤
const NoRejection = -1

var ErrNoSteps = errors.New("wizard: at least one step is required")

// Phase 表示步骤切换的动画阶段。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExiting
	PhaseEntering
)

func (p Phase) String() string {
	switch p {
	case PhaseExiting:
		return "exiting"
	case PhaseEntering:
		return "entering"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle", "":
		*p = PhaseIdle
	case "exiting":
		*p = PhaseExiting
	case "entering":
		*p = PhaseEntering
	default:
		return fmt.Errorf("wizard: unknown phase %q", b)
	}
	return nil
}

// Outcome 是一次导航请求的结果。
type Outcome int

const (
	OutcomeIgnored     Outcome = iota // 非空闲、已完成或已关闭
	OutcomeRejected                   // 当前步骤无效
	OutcomeTransition                 // 已开始切换
	OutcomeCompleted                  // 最后一步提交成功
	OutcomeNoop                       // 第一步上后退
	OutcomeFailed                     // 提交钩子返回错误，留在当前步骤
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransition:
		return "transition"
	case OutcomeCompleted:
		return "completed"
	case OutcomeNoop:
		return "noop"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Validator 根据当前数据计算某一步是否有效
type Validator func(index int, step StepDefinition, data OnboardingData) bool

// AdvanceHook 在离开步骤前执行（保存、调用外部服务），返回的字段会合并进数据。
// 返回错误时控制器停留在当前步骤。
type AdvanceHook func(ctx context.Context, index int, step StepDefinition, data OnboardingData) (OnboardingData, error)

// Snapshot 是控制器状态的只读副本，可序列化后恢复。
type Snapshot struct {
	Index        int            `json:"index"`
	Data         OnboardingData `json:"data"`
	Valid        bool           `json:"valid"`
	Phase        Phase          `json:"phase"`
	LastRejected int            `json:"last_rejected"`
	Saving       bool           `json:"saving"`
	Completed    bool           `json:"completed"`
}

// Rejected 当前步骤是否处于被拒绝状态（用于展示抖动/错误）
func (s Snapshot) Rejected() bool {
	return s.LastRejected == s.Index
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithTransitionDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

func WithValidator(v Validator) Option {
	return func(c *Controller) { c.validate = v }
}

func WithAdvanceHook(h AdvanceHook) Option {
	return func(c *Controller) { c.beforeAdvance = h }
}

// WithOnComplete 最后一步成功提交后调用一次，参数为完整数据
func WithOnComplete(f func(OnboardingData)) Option {
	return func(c *Controller) { c.onComplete = f }
}

// WithOnChange 每次状态变化后调用，在锁外执行
func WithOnChange(f func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = f }
}

// WithRestore 从快照恢复，切换中途的快照按空闲状态恢复
func WithRestore(s Snapshot) Option {
	return func(c *Controller) { c.restore = &s }
}

// Controller 驱动线性向导：idle → exiting → entering → idle。
// 所有方法并发安全。
type Controller struct {
	mu sync.Mutex

	steps         []StepDefinition
	clock         Clock
	delay         time.Duration
	validate      Validator
	beforeAdvance AdvanceHook
	onComplete    func(OnboardingData)
	onChange      func(Snapshot)
	restore       *Snapshot

	index        int
	target       int
	data         OnboardingData
	valid        bool
	phase        Phase
	lastRejected int
	saving       bool
	completed    bool
	closed       bool

	timer Timer
	seq   uint64
}

// NewController 创建控制器，初始位于第 0 步、空闲、数据为空
func NewController(steps []StepDefinition, opts ...Option) (*Controller, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}

	c := &Controller{
		steps:        append([]StepDefinition(nil), steps...),
		clock:        RealClock(),
		delay:        DefaultTransitionDelay,
		data:         OnboardingData{},
		lastRejected: NoRejection,
	}
	for _, opt := range opts {
		opt(c)
	}

	if r := c.restore; r != nil {
		if r.Index >= 0 && r.Index < len(c.steps) {
			c.index = r.Index
		}
		if r.Data != nil {
			c.data = r.Data.Clone()
		}
		c.lastRejected = r.LastRejected
		c.completed = r.Completed
		c.valid = r.Valid
		c.restore = nil
	}
	if c.validate != nil {
		c.valid = c.evaluateLocked()
	}

	return c, nil
}

// Steps 返回步骤定义副本
func (c *Controller) Steps() []StepDefinition {
	return append([]StepDefinition(nil), c.steps...)
}

// State 返回当前状态快照
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// CurrentStep 当前步骤定义
func (c *Controller) CurrentStep() StepDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps[c.index]
}

// UpdateData 合并字段；配置了 Validator 时同步重算有效性。
func (c *Controller) UpdateData(partial map[string]any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.data.Merge(partial)
	if c.validate != nil {
		c.valid = c.evaluateLocked()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// ReportValidity 由当前步骤的输入组件上报有效性
func (c *Controller) ReportValidity(valid bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.valid = valid
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// RequestNext 尝试前进。
// 非空闲时忽略；当前步骤无效时记录拒绝；否则先执行 AdvanceHook，
// 成功后进入切换，最后一步则触发完成回调。
func (c *Controller) RequestNext(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if !c.readyLocked() {
		c.mu.Unlock()
		return OutcomeIgnored, nil
	}

	if !c.valid {
		c.lastRejected = c.index
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return OutcomeRejected, nil
	}

	index := c.index
	step := c.steps[index]
	data := c.data.Clone()
	hook := c.beforeAdvance
	c.lastRejected = NoRejection

	if hook != nil {
		c.saving = true
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)

		patch, err := hook(ctx, index, step, data)

		c.mu.Lock()
		c.saving = false
		if c.closed {
			c.mu.Unlock()
			return OutcomeIgnored, nil
		}
		if err != nil {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			c.notify(snap)
			return OutcomeFailed, err
		}
		c.data.Merge(patch)
	}

	if index == len(c.steps)-1 {
		c.completed = true
		final := c.data.Clone()
		onComplete := c.onComplete
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.notify(snap)
		if onComplete != nil {
			onComplete(final)
		}
		return OutcomeCompleted, nil
	}

	c.beginTransitionLocked(index + 1)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return OutcomeTransition, nil
}

// RequestPrevious 后退一步；第一步上无操作，不检查有效性。
func (c *Controller) RequestPrevious() Outcome {
	c.mu.Lock()
	if !c.readyLocked() {
		c.mu.Unlock()
		return OutcomeIgnored
	}
	if c.index == 0 {
		c.mu.Unlock()
		return OutcomeNoop
	}

	c.beginTransitionLocked(c.index - 1)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return OutcomeTransition
}

// Close 取消挂起的计时器，之后的计时回调与请求均被忽略
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) readyLocked() bool {
	return !c.closed && !c.completed && !c.saving && c.phase == PhaseIdle
}

func (c *Controller) beginTransitionLocked(target int) {
	c.seq++
	seq := c.seq
	c.phase = PhaseExiting
	c.target = target
	c.timer = c.clock.AfterFunc(c.delay, func() { c.finishExit(seq) })
}

// finishExit 离场动画结束：切换索引、清除拒绝标记并开始入场
func (c *Controller) finishExit(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.seq || c.phase != PhaseExiting {
		c.mu.Unlock()
		return
	}

	c.index = c.target
	c.lastRejected = NoRejection
	c.phase = PhaseEntering
	c.valid = c.evaluateLocked()
	c.timer = c.clock.AfterFunc(c.delay, func() { c.finishEnter(seq) })
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Controller) finishEnter(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.seq || c.phase != PhaseEntering {
		c.mu.Unlock()
		return
	}

	c.phase = PhaseIdle
	c.timer = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// evaluateLocked 没有 Validator 时新步骤默认无效，等待组件上报
func (c *Controller) evaluateLocked() bool {
	if c.validate == nil {
		return false
	}
	return c.validate(c.index, c.steps[c.index], c.data)
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Index:        c.index,
		Data:         c.data.Clone(),
		Valid:        c.valid,
		Phase:        c.phase,
		LastRejected: c.lastRejected,
		Saving:       c.saving,
		Completed:    c.completed,
	}
}

func (c *Controller) notify(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}
