package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Kinship/internal/model"
	"Kinship/internal/repository"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
)

// ProgressCollection 引导进度文档所在集合
const ProgressCollection = "onboarding_progress"

// OnboardingService 引导进度持久化，按 (tenant, user) 读写一份文档
type OnboardingService struct {
	docs repository.DocumentStore
	now  func() time.Time
}

func NewOnboardingService(docs repository.DocumentStore, now func() time.Time) *OnboardingService {
	if now == nil {
		now = time.Now
	}
	return &OnboardingService{docs: docs, now: now}
}

// ProgressKey 文档 key：tenantID:userID
func ProgressKey(tenantID, userID string) string {
	return tenantID + ":" + userID
}

// SaveStep 记录某一步的数据，completed 为真时加入已完成列表（去重）。
// 读取或写入存储失败时原样返回存储错误。
func (s *OnboardingService) SaveStep(
	ctx context.Context,
	tenantID, userID string,
	step model.OnboardingStep,
	payload any,
	completed bool,
) (*model.OnboardingProgress, error) {
	if tenantID == "" || userID == "" {
		return nil, pkgerrors.InvalidUserID
	}
	if step.Index() < 0 {
		return nil, pkgerrors.OnboardingStepInvalid
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal step payload: %w", err)
	}

	key := ProgressKey(tenantID, userID)
	now := s.now().UTC()

	var progress model.OnboardingProgress
	err = s.docs.ReadDocument(ctx, ProgressCollection, key, &progress)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		progress = model.OnboardingProgress{
			TenantID:  tenantID,
			UserID:    userID,
			CreatedAt: now,
		}
	case err != nil:
		return nil, err
	}

	if progress.StepData == nil {
		progress.StepData = make(map[model.OnboardingStep]json.RawMessage)
	}
	progress.StepData[step] = raw
	progress.CurrentStep = step
	if completed && !progress.HasCompleted(step) {
		progress.CompletedSteps = append(progress.CompletedSteps, step)
	}
	progress.UpdatedAt = now

	if err := s.docs.WriteDocument(ctx, ProgressCollection, key, &progress); err != nil {
		return nil, err
	}

	logger.Logger.Debug("Onboarding step saved",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("step", string(step)),
		zap.Bool("completed", completed),
	)
	return &progress, nil
}

// LoadProgress 读取进度，不存在时返回 OnboardingProgressNotFound
func (s *OnboardingService) LoadProgress(ctx context.Context, tenantID, userID string) (*model.OnboardingProgress, error) {
	if tenantID == "" || userID == "" {
		return nil, pkgerrors.InvalidUserID
	}

	var progress model.OnboardingProgress
	err := s.docs.ReadDocument(ctx, ProgressCollection, ProgressKey(tenantID, userID), &progress)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, pkgerrors.OnboardingProgressNotFound
	}
	if err != nil {
		return nil, err
	}
	if progress.StepData == nil {
		progress.StepData = make(map[model.OnboardingStep]json.RawMessage)
	}
	return &progress, nil
}

// NextIncompleteStep 按固定顺序返回第一个未完成的步骤；全部完成时返回 false
func NextIncompleteStep(progress *model.OnboardingProgress) (model.OnboardingStep, bool) {
	for _, step := range model.CanonicalSteps {
		if progress == nil || !progress.HasCompleted(step) {
			return step, true
		}
	}
	return "", false
}

// IsComplete 所有固定步骤都已完成
func IsComplete(progress *model.OnboardingProgress) bool {
	_, pending := NextIncompleteStep(progress)
	return !pending
}
