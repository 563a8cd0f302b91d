package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kinship/internal/model"
	"Kinship/internal/repository"
	pkgerrors "Kinship/pkg/errors"
)

// failingStore 读写都返回同一个错误
type failingStore struct {
	err error
}

func (f failingStore) ReadDocument(context.Context, string, string, any) error  { return f.err }
func (f failingStore) WriteDocument(context.Context, string, string, any) error { return f.err }
func (f failingStore) DeleteDocument(context.Context, string, string) error     { return f.err }

func fixedNow() time.Time {
	return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
}

func TestSaveStepCreatesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	svc := NewOnboardingService(repository.NewMemoryDocumentStore(), fixedNow)

	p, err := svc.SaveStep(ctx, "acme", "42", model.StepAccount, map[string]any{"email": "a@b.co"}, true)
	require.NoError(t, err)
	assert.Equal(t, []model.OnboardingStep{model.StepAccount}, p.CompletedSteps)
	assert.Equal(t, model.StepAccount, p.CurrentStep)
	assert.Equal(t, fixedNow(), p.CreatedAt)

	p, err = svc.SaveStep(ctx, "acme", "42", model.StepAccount, map[string]any{"email": "c@d.co"}, true)
	require.NoError(t, err)
	assert.Equal(t, []model.OnboardingStep{model.StepAccount}, p.CompletedSteps, "completed steps stay unique")
	assert.JSONEq(t, `{"email":"c@d.co"}`, string(p.StepData[model.StepAccount]))

	p, err = svc.SaveStep(ctx, "acme", "42", model.StepProfile, map[string]any{"displayName": "Ada"}, false)
	require.NoError(t, err)
	assert.Equal(t, model.StepProfile, p.CurrentStep)
	assert.False(t, p.HasCompleted(model.StepProfile))
	assert.Len(t, p.StepData, 2)
}

func TestLoadProgress(t *testing.T) {
	ctx := context.Background()
	svc := NewOnboardingService(repository.NewMemoryDocumentStore(), fixedNow)

	_, err := svc.LoadProgress(ctx, "acme", "42")
	assert.ErrorIs(t, err, pkgerrors.OnboardingProgressNotFound)

	_, err = svc.SaveStep(ctx, "acme", "42", model.StepAccount, nil, true)
	require.NoError(t, err)

	p, err := svc.LoadProgress(ctx, "acme", "42")
	require.NoError(t, err)
	assert.Equal(t, "acme", p.TenantID)
	assert.Equal(t, "42", p.UserID)

	_, err = svc.LoadProgress(ctx, "other", "42")
	assert.ErrorIs(t, err, pkgerrors.OnboardingProgressNotFound, "progress is tenant scoped")
}

func TestSaveStepRejectsUnknownStep(t *testing.T) {
	svc := NewOnboardingService(repository.NewMemoryDocumentStore(), fixedNow)

	_, err := svc.SaveStep(context.Background(), "acme", "42", model.OnboardingStep("billing"), nil, true)
	assert.ErrorIs(t, err, pkgerrors.OnboardingStepInvalid)

	_, err = svc.SaveStep(context.Background(), "", "42", model.StepAccount, nil, true)
	assert.ErrorIs(t, err, pkgerrors.InvalidUserID)
}

func TestStoreErrorsPropagateUnchanged(t *testing.T) {
	storeErr := errors.New("connection reset")
	svc := NewOnboardingService(failingStore{err: storeErr}, fixedNow)

	_, err := svc.SaveStep(context.Background(), "acme", "42", model.StepAccount, nil, true)
	assert.Same(t, storeErr, err)

	_, err = svc.LoadProgress(context.Background(), "acme", "42")
	assert.Same(t, storeErr, err)
}

func TestNextIncompleteStep(t *testing.T) {
	step, ok := NextIncompleteStep(nil)
	assert.True(t, ok)
	assert.Equal(t, model.StepAccount, step)

	p := &model.OnboardingProgress{CompletedSteps: []model.OnboardingStep{model.StepAccount, model.StepProfile}}
	step, ok = NextIncompleteStep(p)
	assert.True(t, ok)
	assert.Equal(t, model.StepVerifyEmail, step, "order follows the canonical list, not completion order")
	assert.False(t, IsComplete(p))

	p.CompletedSteps = append([]model.OnboardingStep(nil), model.CanonicalSteps...)
	_, ok = NextIncompleteStep(p)
	assert.False(t, ok)
	assert.True(t, IsComplete(p))
}

func TestProgressDocumentShape(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	svc := NewOnboardingService(store, fixedNow)
	_, err := svc.SaveStep(context.Background(), "acme", "42", model.StepCommunity, map[string]any{"communityName": "Climbers"}, true)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, store.ReadDocument(context.Background(), ProgressCollection, "acme:42", &raw))
	assert.Contains(t, raw, "completed_steps")
	assert.Contains(t, raw, "step_data")
}
