package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type MockCall struct {
	To      string
	Subject string
	HTML    string
}

// MockClient 记录调用的邮件客户端，EMAIL_PROVIDER=mock 与测试使用
type MockClient struct {
	mu    sync.Mutex
	calls []MockCall

	// FailNext 置为 true 时，下一次调用返回 mock 错误并自动复位
	FailNext bool
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Send(ctx context.Context, to, subject, html string) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{To: to, Subject: subject, HTML: html})

	if m.FailNext {
		m.FailNext = false
		return nil, errors.New("mock email send failure")
	}

	return &SendResult{
		MessageID: fmt.Sprintf("mock-%d", len(m.calls)),
		RequestID: "mock-request-id",
		Provider:  "mock",
	}, nil
}

// Calls 返回已记录调用的副本
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Fail 令下一次发送失败
func (m *MockClient) Fail() {
	m.mu.Lock()
	m.FailNext = true
	m.mu.Unlock()
}
