package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"Kinship/internal/model"
	"Kinship/internal/repository"
	"Kinship/internal/service"
)

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
		return nil
	}, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []*model.EmailMessage
	fail bool
}

func (m *recordingMailer) Send(ctx context.Context, msg *model.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		m.fail = false
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type reminderFixture struct {
	docs     *repository.MemoryDocumentStore
	identity *service.IdentityService
	progress *service.OnboardingService
	mailer   *recordingMailer
	sched    *ReminderScheduler
	now      time.Time
}

func newReminderFixture(t *testing.T) *reminderFixture {
	t.Helper()
	f := &reminderFixture{
		docs:   repository.NewMemoryDocumentStore(),
		mailer: &recordingMailer{},
		now:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	var seq int64 = 100
	f.identity = service.NewIdentityService(repository.NewMemoryUserRepository(), nil, service.IdentityOptions{
		BcryptCost: bcrypt.MinCost,
		NextID: func() (int64, error) {
			seq++
			return seq, nil
		},
	})
	f.progress = service.NewOnboardingService(f.docs, func() time.Time { return f.now })
	f.sched = NewReminderScheduler(f.docs, f.identity, f.mailer, &memoryLocker{}, ReminderOptions{
		After:      24 * time.Hour,
		AppBaseURL: "https://app.test",
		Now:        func() time.Time { return f.now },
	})
	return f
}

// user 注册并在 updatedAt 时保存 steps
func (f *reminderFixture) user(t *testing.T, addr string, updatedAt time.Time, steps ...model.OnboardingStep) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.identity.SignUpWithPassword(ctx, "acme", addr, "correct horse", "Member")
	require.NoError(t, err)

	f.docs.SetClock(func() time.Time { return updatedAt })
	for _, step := range steps {
		_, err := f.progress.SaveStep(ctx, "acme", id.UserID, step, map[string]any{}, true)
		require.NoError(t, err)
	}
	return id.UserID
}

func TestReminderSendsOncePerDay(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	stale := f.now.Add(-48 * time.Hour)

	pending := f.user(t, "pending@example.com", stale, model.StepAccount, model.StepVerifyEmail)
	f.user(t, "done@example.com", stale, model.CanonicalSteps...)
	f.user(t, "recent@example.com", f.now.Add(-time.Hour), model.StepAccount)

	sent, err := f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "pending@example.com", msg.To)
	assert.Equal(t, pending, msg.UserID)
	assert.Equal(t, model.EmailCategoryReminder, msg.Category)
	assert.Contains(t, msg.HTML, "Set up your profile")

	sent, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "locked for the rest of the day")

	f.now = f.now.Add(24 * time.Hour)
	sent, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "next day both incomplete users are stale")
}

func TestReminderRetriesAfterSendFailure(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	f.user(t, "retry@example.com", f.now.Add(-30*time.Hour), model.StepAccount)

	f.mailer.fail = true
	sent, err := f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	sent, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "lock released after failure")
}

func TestReminderSkipsActiveUsers(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	userID := f.user(t, "active@example.com", f.now.Add(-30*time.Hour), model.StepAccount)
	_, err := f.identity.Activate(ctx, userID)
	require.NoError(t, err)

	sent, err := f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.mailer.sent)
}
