package slider

import (
	"context"

	"Kinship/pkg/errors"
)

// MockClient 开发与测试用，参数非空即通过；"fail" 视为用户滑动失败
type MockClient struct{}

func (m *MockClient) Verify(ctx context.Context, captchaVerifyParam, sceneID string) (bool, error) {
	if captchaVerifyParam == "" {
		return false, errors.ErrCaptchaTokenRequired
	}
	return captchaVerifyParam != "fail", nil
}
