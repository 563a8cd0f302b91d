package schedule

// 引导提醒调度器：每小时扫描长时间未更新且未完成的引导进度，发送继续设置的提醒邮件

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"Kinship/internal/model"
	"Kinship/internal/repository"
	"Kinship/internal/service"
	"Kinship/pkg/email"
	"Kinship/pkg/logger"
	"Kinship/utils"
)

const defaultBatchSize = 500

// UserLookup service.IdentityService 实现
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// Locker cache.Locker 实现；锁被占用时返回 nil
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type ReminderOptions struct {
	// After 进度多久未更新才提醒
	After      time.Duration
	BatchSize  int
	AppBaseURL string
	Now        func() time.Time
}

type ReminderScheduler struct {
	docs   repository.StaleLister
	users  UserLookup
	mailer service.Mailer
	locker Locker
	opts   ReminderOptions

	runningMu sync.Mutex
	running   bool
}

func NewReminderScheduler(docs repository.StaleLister, users UserLookup, mailer service.Mailer, locker Locker, opts ReminderOptions) *ReminderScheduler {
	if opts.After <= 0 {
		opts.After = 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ReminderScheduler{
		docs:   docs,
		users:  users,
		mailer: mailer,
		locker: locker,
		opts:   opts,
	}
}

// RunOnce 扫描一轮，返回发出的提醒数量。同一进程内不会并发执行
func (s *ReminderScheduler) RunOnce(ctx context.Context) (int, error) {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		logger.Logger.Info("Reminder job already running, skipping")
		return 0, nil
	}
	s.running = true
	s.runningMu.Unlock()

	defer func() {
		s.runningMu.Lock()
		s.running = false
		s.runningMu.Unlock()
	}()

	now := s.opts.Now()
	docs, err := s.docs.ListStale(ctx, service.ProgressCollection, now.Add(-s.opts.After), s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale progress: %w", err)
	}

	sent := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		var progress model.OnboardingProgress
		if err := json.Unmarshal(doc.Body, &progress); err != nil {
			logger.Logger.Warn("Skipping malformed progress document", zap.String("key", doc.Key), zap.Error(err))
			continue
		}
		if service.IsComplete(&progress) {
			continue
		}

		ok, err := s.remind(ctx, now, &progress)
		if err != nil {
			logger.Logger.Warn("Failed to send onboarding reminder",
				zap.String("tenant_id", progress.TenantID),
				zap.String("user_id", progress.UserID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			sent++
		}
	}

	logger.Logger.Info("Onboarding reminder run finished",
		zap.Int("scanned", len(docs)),
		zap.Int("sent", sent),
	)
	return sent, nil
}

// remind 每个用户每天最多一封；发送失败时释放锁，下一轮重试
func (s *ReminderScheduler) remind(ctx context.Context, now time.Time, progress *model.OnboardingProgress) (bool, error) {
	key := fmt.Sprintf("reminder:%s:%s:%s", progress.TenantID, progress.UserID, utils.DateKey(now))
	unlock, err := s.locker.TryLock(ctx, key, utils.UntilNextDay(now))
	if err != nil {
		return false, fmt.Errorf("acquire reminder lock: %w", err)
	}
	if unlock == nil {
		return false, nil
	}

	sent, sendErr := s.send(ctx, progress)
	if sendErr != nil {
		if err := unlock(ctx); err != nil {
			logger.Logger.Warn("Failed to release reminder lock", zap.String("key", key), zap.Error(err))
		}
		return false, sendErr
	}
	return sent, nil
}

// send 已激活的用户不再提醒
func (s *ReminderScheduler) send(ctx context.Context, progress *model.OnboardingProgress) (bool, error) {
	user, err := s.users.GetUser(ctx, progress.UserID)
	if err != nil {
		return false, err
	}
	if user.Status == model.UserStatusActive {
		return false, nil
	}

	next, _ := service.NextIncompleteStep(progress)
	subject, html, err := email.RenderReminder(email.ReminderData{
		DisplayName: user.DisplayName,
		NextStep:    stepLabel(next),
		ResumeURL:   s.opts.AppBaseURL + "/onboarding/resume",
	})
	if err != nil {
		return false, err
	}

	err = s.mailer.Send(ctx, &model.EmailMessage{
		TenantID: progress.TenantID,
		UserID:   progress.UserID,
		Category: model.EmailCategoryReminder,
		To:       user.Email,
		Subject:  subject,
		HTML:     html,
	})
	return err == nil, err
}

// stepLabel 邮件中展示的步骤名称
func stepLabel(step model.OnboardingStep) string {
	for _, def := range service.OnboardingSteps() {
		if def.Key == string(step) {
			return def.Title
		}
	}
	return string(step)
}

// Run 按固定间隔执行，直到 ctx 取消
func (s *ReminderScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if _, err := s.RunOnce(runCtx); err != nil {
				logger.Logger.Error("Onboarding reminder run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
