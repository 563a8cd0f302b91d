package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Kinship/internal/cache"
	"Kinship/internal/model"
	"Kinship/internal/repository"
	"Kinship/internal/validation"
	"Kinship/internal/wizard"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/metrics"
	"Kinship/pkg/token"
)

// SnapshotStore 会话快照，cache.WizardSnapshotStore 实现
type SnapshotStore interface {
	Save(ctx context.Context, snap *model.WizardSessionSnapshot) error
	Load(ctx context.Context, sessionID string) (*model.WizardSessionSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// TokenMinter 账号步骤创建用户后签发 token
type TokenMinter interface {
	IssueFor(ctx context.Context, id *model.Identity) (*token.Pair, error)
}

type WizardOptions struct {
	TransitionDelay time.Duration
	IdleTTL         time.Duration
	Validation      validation.Options
	AppBaseURL      string
	Clock           wizard.Clock
	Now             func() time.Time
	NewID           func() string
}

// WizardDeps 向导依赖的各个服务；Snapshots、Tokens、Uploads 可为空
type WizardDeps struct {
	Identity     *IdentityService
	Verification *VerificationService
	Progress     *OnboardingService
	Docs         repository.DocumentStore
	Mailer       Mailer
	Snapshots    SnapshotStore
	Tokens       TokenMinter
	Uploads      *UploadService
}

// WizardService 按会话维护向导控制器
type WizardService struct {
	deps    WizardDeps
	opts    WizardOptions
	schemas map[model.OnboardingStep]validation.Schema
	steps   []wizard.StepDefinition
	allowed map[string]struct{}

	mu       sync.Mutex
	sessions map[string]*wizardSession
}

type wizardSession struct {
	id       string
	tenantID string
	ctrl     *wizard.Controller

	mu       sync.Mutex
	lastSeen time.Time
	banner   *Banner
	tokens   *token.Pair
}

// Banner 步骤提交失败时展示的提示
type Banner struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WizardView 返回给前端的会话状态
type WizardView struct {
	SessionID   string                `json:"session_id"`
	Step        wizard.StepDefinition `json:"step"`
	StepIndex   int                   `json:"step_index"`
	StepCount   int                   `json:"step_count"`
	Phase       wizard.Phase          `json:"phase"`
	Valid       bool                  `json:"valid"`
	Rejected    bool                  `json:"rejected"`
	Errors      map[string]string     `json:"errors"`
	PendingSave bool                  `json:"pending_save"`
	Completed   bool                  `json:"completed"`
	Outcome     string                `json:"outcome,omitempty"`
	Banner      *Banner               `json:"banner,omitempty"`
	Data        map[string]any        `json:"data"`
	Tokens      *token.Pair           `json:"tokens,omitempty"`
}

func NewWizardService(deps WizardDeps, opts WizardOptions) *WizardService {
	if opts.TransitionDelay <= 0 {
		opts.TransitionDelay = wizard.DefaultTransitionDelay
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = wizard.RealClock()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	schemas := validation.StepSchemas(opts.Validation)
	allowed := make(map[string]struct{})
	for _, schema := range schemas {
		for _, f := range schema.Fields() {
			allowed[f] = struct{}{}
		}
	}
	allowed[model.FieldAvatarURL] = struct{}{}

	return &WizardService{
		deps:     deps,
		opts:     opts,
		schemas:  schemas,
		steps:    OnboardingSteps(),
		allowed:  allowed,
		sessions: make(map[string]*wizardSession),
	}
}

// Start 恢复 sessionID 对应的会话，不存在或租户不符时新建
func (s *WizardService) Start(ctx context.Context, tenantID, sessionID string) (*WizardView, error) {
	if sessionID != "" {
		sess, err := s.session(ctx, tenantID, sessionID)
		if err == nil {
			return s.view(sess, ""), nil
		}
		if !errors.Is(err, pkgerrors.WizardSessionNotFound) {
			return nil, err
		}
	}

	sess, err := s.open(tenantID, nil)
	if err != nil {
		return nil, err
	}
	logger.Logger.Info("Wizard session started",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", sess.id),
	)
	return s.view(sess, ""), nil
}

// Resume 已登录用户从进度文档继续引导
func (s *WizardService) Resume(ctx context.Context, tenantID, userID string) (*WizardView, error) {
	user, err := s.deps.Identity.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TenantID != tenantID {
		return nil, pkgerrors.OnboardingAccountMissing
	}

	progress, err := s.deps.Progress.LoadProgress(ctx, tenantID, userID)
	if err != nil && !errors.Is(err, pkgerrors.OnboardingProgressNotFound) {
		return nil, err
	}

	data := wizard.OnboardingData{}
	if progress != nil {
		for _, step := range model.CanonicalSteps {
			raw, ok := progress.StepData[step]
			if !ok {
				continue
			}
			var fields map[string]any
			if err := json.Unmarshal(raw, &fields); err == nil {
				data.Merge(fields)
			}
		}
	}
	data.Merge(map[string]any{
		model.FieldUserID:        userID,
		model.FieldTenantID:      tenantID,
		model.FieldEmail:         user.Email,
		model.FieldEmailVerified: user.EmailVerified,
	})
	if user.DisplayName != "" {
		data[model.FieldDisplayName] = user.DisplayName
	}
	if user.AvatarURL != "" {
		data[model.FieldAvatarURL] = user.AvatarURL
	}

	restore := wizard.Snapshot{Data: data, LastRejected: wizard.NoRejection}
	next, pending := NextIncompleteStep(progress)
	switch {
	case !pending:
		restore.Index = len(s.steps) - 1
		restore.Completed = true
	case next == model.StepAccount:
		// 账号已存在
		restore.Index = model.StepVerifyEmail.Index()
	default:
		restore.Index = next.Index()
	}
	if restore.Index == model.StepVerifyEmail.Index() && user.EmailVerified {
		restore.Index = model.StepProfile.Index()
	}

	sess, err := s.open(tenantID, &restore)
	if err != nil {
		return nil, err
	}
	return s.view(sess, ""), nil
}

// Get 当前会话状态
func (s *WizardService) Get(ctx context.Context, tenantID, sessionID string) (*WizardView, error) {
	sess, err := s.session(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(sess, ""), nil
}

// UpdateData 合并表单字段；服务端字段与未知字段被拒绝
func (s *WizardService) UpdateData(ctx context.Context, tenantID, sessionID string, partial map[string]any) (*WizardView, error) {
	for field := range partial {
		if isReserved(field) {
			return nil, pkgerrors.Wrap(pkgerrors.WizardFieldReserved, errors.New(field))
		}
		if _, ok := s.allowed[field]; !ok {
			return nil, pkgerrors.Wrap(pkgerrors.InvalidRequest, errors.New("unknown field "+field))
		}
	}

	sess, err := s.session(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	sess.ctrl.UpdateData(partial)
	return s.view(sess, ""), nil
}

// Next 提交当前步骤。提交期间的重复请求被忽略；步骤动作失败时返回带 banner 的视图。
func (s *WizardService) Next(ctx context.Context, tenantID, sessionID string) (*WizardView, error) {
	sess, err := s.session(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	step := sess.ctrl.CurrentStep().Key
	outcome, err := sess.ctrl.RequestNext(ctx)
	switch outcome {
	case wizard.OutcomeRejected:
		metrics.RecordWizardRejection(ctx, step)
	case wizard.OutcomeTransition, wizard.OutcomeCompleted:
		metrics.RecordWizardTransition(ctx, step, "next")
		sess.setBanner(nil)
	case wizard.OutcomeFailed:
		sess.setBanner(bannerFor(err))
		logger.Logger.Warn("Wizard step action failed",
			zap.String("session_id", sessionID),
			zap.String("step", step),
			zap.Error(err),
		)
	}
	return s.view(sess, outcome.String()), nil
}

// Previous 返回上一步
func (s *WizardService) Previous(ctx context.Context, tenantID, sessionID string) (*WizardView, error) {
	sess, err := s.session(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	step := sess.ctrl.CurrentStep().Key
	outcome := sess.ctrl.RequestPrevious()
	if outcome == wizard.OutcomeTransition {
		metrics.RecordWizardTransition(ctx, step, "previous")
		sess.setBanner(nil)
	}
	return s.view(sess, outcome.String()), nil
}

// Upload 上传图片并把 URL 写入对应字段
func (s *WizardService) Upload(ctx context.Context, tenantID, sessionID, field string, body io.Reader) (*WizardView, error) {
	kind, ok := UploadKindForField(field)
	if !ok {
		return nil, pkgerrors.UploadFieldInvalid
	}
	if s.deps.Uploads == nil {
		return nil, pkgerrors.UploadFailed
	}

	sess, err := s.session(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	previous := validation.AsString(sess.ctrl.State().Data[field])
	obj, err := s.deps.Uploads.Upload(ctx, tenantID, kind, body, previous)
	if err != nil {
		return nil, err
	}
	sess.ctrl.UpdateData(map[string]any{field: obj.URL})
	return s.view(sess, ""), nil
}

// SweepIdle 回收空闲超过 IdleTTL 的会话，返回回收数量
func (s *WizardService) SweepIdle() int {
	cutoff := s.opts.Now().Add(-s.opts.IdleTTL)

	s.mu.Lock()
	var idle []*wizardSession
	for id, sess := range s.sessions {
		if sess.seenBefore(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.ctrl.Close()
	}
	if len(idle) > 0 {
		metrics.AddWizardSessions(context.Background(), -int64(len(idle)))
		logger.Logger.Debug("Idle wizard sessions swept", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunSweeper 按 interval 回收空闲会话，直到 ctx 取消
func (s *WizardService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle()
		}
	}
}

// Close 关闭所有会话的控制器
func (s *WizardService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*wizardSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.ctrl.Close()
	}
}

// session 先查本地注册表，再从快照恢复
func (s *WizardService) session(ctx context.Context, tenantID, sessionID string) (*wizardSession, error) {
	if sessionID == "" {
		return nil, pkgerrors.WizardSessionNotFound
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		if sess.tenantID != tenantID {
			return nil, pkgerrors.WizardSessionNotFound
		}
		sess.touch(s.opts.Now())
		return sess, nil
	}

	if s.deps.Snapshots == nil {
		return nil, pkgerrors.WizardSessionNotFound
	}
	snap, err := s.deps.Snapshots.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, cache.ErrSnapshotNotFound) {
			logger.Logger.Warn("Failed to load wizard snapshot", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, pkgerrors.WizardSessionNotFound
	}
	if snap.TenantID != tenantID {
		return nil, pkgerrors.WizardSessionNotFound
	}

	return s.register(sessionID, tenantID, &snap.State)
}

func (s *WizardService) open(tenantID string, restore *wizard.Snapshot) (*wizardSession, error) {
	return s.register(s.opts.NewID(), tenantID, restore)
}

// register 同一个 id 并发恢复时保留先注册的会话
func (s *WizardService) register(id, tenantID string, restore *wizard.Snapshot) (*wizardSession, error) {
	sess := &wizardSession{id: id, tenantID: tenantID, lastSeen: s.opts.Now()}

	opts := []wizard.Option{
		wizard.WithClock(s.opts.Clock),
		wizard.WithTransitionDelay(s.opts.TransitionDelay),
		wizard.WithValidator(s.validate),
		wizard.WithAdvanceHook(s.advanceHook(sess)),
		wizard.WithOnComplete(s.onComplete(sess)),
		wizard.WithOnChange(s.persist(sess)),
	}
	if restore != nil {
		opts = append(opts, wizard.WithRestore(*restore))
	}

	ctrl, err := wizard.NewController(s.steps, opts...)
	if err != nil {
		return nil, err
	}
	sess.ctrl = ctrl

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		ctrl.Close()
		return existing, nil
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	metrics.AddWizardSessions(context.Background(), 1)
	s.persist(sess)(ctrl.State())
	return sess, nil
}

// satisfied 账号已创建时账号步骤、邮箱已验证时验证码步骤无需再填写
func satisfied(step model.OnboardingStep, data wizard.OnboardingData) bool {
	switch step {
	case model.StepAccount:
		return validation.AsString(data[model.FieldUserID]) != ""
	case model.StepVerifyEmail:
		return isTrue(data[model.FieldEmailVerified])
	}
	return false
}

func (s *WizardService) validate(index int, step wizard.StepDefinition, data wizard.OnboardingData) bool {
	key := model.OnboardingStep(step.Key)
	if satisfied(key, data) {
		return true
	}
	schema, ok := s.schemas[key]
	if !ok {
		return true
	}
	return schema.Valid(data)
}

// persist 每次状态变化写快照，失败只记录日志
func (s *WizardService) persist(sess *wizardSession) func(wizard.Snapshot) {
	return func(state wizard.Snapshot) {
		if s.deps.Snapshots == nil {
			return
		}
		state.Data = state.Data.Without(model.SecretFields...)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := s.deps.Snapshots.Save(ctx, &model.WizardSessionSnapshot{
			SessionID: sess.id,
			TenantID:  sess.tenantID,
			State:     state,
			SavedAt:   s.opts.Now().UTC(),
		})
		if err != nil {
			logger.Logger.Warn("Failed to save wizard snapshot", zap.String("session_id", sess.id), zap.Error(err))
		}
	}
}

func (s *WizardService) view(sess *wizardSession, outcome string) *WizardView {
	state := sess.ctrl.State()
	step := s.steps[state.Index]

	errs := map[string]string{}
	key := model.OnboardingStep(step.Key)
	if schema, ok := s.schemas[key]; ok && !satisfied(key, state.Data) {
		errs = schema.Visible(state.Data, state.Rejected())
	}

	sess.mu.Lock()
	banner := sess.banner
	tokens := sess.tokens
	sess.tokens = nil
	sess.mu.Unlock()

	return &WizardView{
		SessionID:   sess.id,
		Step:        step,
		StepIndex:   state.Index,
		StepCount:   len(s.steps),
		Phase:       state.Phase,
		Valid:       state.Valid,
		Rejected:    state.Rejected(),
		Errors:      errs,
		PendingSave: state.Saving,
		Completed:   state.Completed,
		Outcome:     outcome,
		Banner:      banner,
		Data:        state.Data.Without(model.SecretFields...),
		Tokens:      tokens,
	}
}

func (sess *wizardSession) touch(now time.Time) {
	sess.mu.Lock()
	sess.lastSeen = now
	sess.mu.Unlock()
}

func (sess *wizardSession) seenBefore(cutoff time.Time) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastSeen.Before(cutoff)
}

func (sess *wizardSession) setBanner(b *Banner) {
	sess.mu.Lock()
	sess.banner = b
	sess.mu.Unlock()
}

func (sess *wizardSession) setTokens(p *token.Pair) {
	sess.mu.Lock()
	sess.tokens = p
	sess.mu.Unlock()
}

func bannerFor(err error) *Banner {
	var def pkgerrors.Definition
	if errors.As(err, &def) {
		return &Banner{Code: def.Code, Message: def.Message}
	}
	return &Banner{Code: pkgerrors.Internal.Code, Message: "Something went wrong. Please try again."}
}

func isReserved(field string) bool {
	for _, f := range model.ReservedFields {
		if f == field {
			return true
		}
	}
	return false
}

func isTrue(v any) bool {
	b, _ := v.(bool)
	return b
}
