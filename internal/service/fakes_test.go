package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"Kinship/internal/model"
)

// recordingMailer 记录投递的邮件，err 非空时全部失败
type recordingMailer struct {
	mu   sync.Mutex
	sent []model.EmailMessage
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg *model.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, *msg)
	return nil
}

func (m *recordingMailer) Sent() []model.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EmailMessage(nil), m.sent...)
}

func (m *recordingMailer) byCategory(category string) []model.EmailMessage {
	var out []model.EmailMessage
	for _, msg := range m.Sent() {
		if msg.Category == category {
			out = append(out, msg)
		}
	}
	return out
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (c *memoryCounter) IncrSendCount(ctx context.Context, hash string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[hash]++
	return c.counts[hash], nil
}

type memorySliderTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *memorySliderTokens) IssueToken(ctx context.Context, subject string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = make(map[string]string)
	}
	token := "slider-" + subject[:8]
	s.tokens[subject] = token
	return token, fixedNow().Add(10 * time.Minute), nil
}

func (s *memorySliderTokens) ConsumeToken(ctx context.Context, subject, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tokens[subject]
	delete(s.tokens, subject)
	return ok && stored == token, nil
}

type stubSlider struct {
	pass bool
	err  error
}

func (s stubSlider) Verify(ctx context.Context, param, sceneID string) (bool, error) {
	return s.pass, s.err
}

var errBoom = errors.New("boom")
