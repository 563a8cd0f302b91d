package slider

import (
	"context"
	"fmt"

	captcha "github.com/alibabacloud-go/captcha-20230305/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"Kinship/pkg/errors"
	"Kinship/pkg/logger"
)

const defaultEndpoint = "captcha.cn-hangzhou.aliyuncs.com"

// AliyunClient 阿里云智能验证码 2.0
type AliyunClient struct {
	client *captcha.Client
}

func NewAliyunClient() (*AliyunClient, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := captcha.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String(defaultEndpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create captcha client: %w", err)
	}

	return &AliyunClient{client: client}, nil
}

// Verify 校验前端滑块组件返回的 CaptchaVerifyParam
func (c *AliyunClient) Verify(ctx context.Context, captchaVerifyParam, sceneID string) (bool, error) {
	if captchaVerifyParam == "" {
		return false, errors.ErrCaptchaTokenRequired
	}

	response, err := c.client.VerifyIntelligentCaptcha(&captcha.VerifyIntelligentCaptchaRequest{
		CaptchaVerifyParam: tea.String(captchaVerifyParam),
		SceneId:            tea.String(sceneID),
	})
	if err != nil {
		logger.Logger.Error("Failed to verify captcha", zap.String("scene", sceneID), zap.Error(err))
		return false, fmt.Errorf("failed to verify captcha: %w", err)
	}

	if response == nil || response.Body == nil {
		return false, errors.ErrCaptchaResponseNil
	}
	body := response.Body

	if body.Result != nil && tea.BoolValue(body.Result.VerifyResult) {
		logger.Logger.Debug("Captcha verification passed", zap.String("scene", sceneID))
		return true, nil
	}

	if code := tea.StringValue(body.Code); code != "" && code != "200" && code != "Success" {
		message := tea.StringValue(body.Message)
		logger.Logger.Warn("Captcha verification error",
			zap.String("code", code),
			zap.String("message", message),
			zap.String("scene", sceneID),
		)
		return false, fmt.Errorf("%w: %s - %s", errors.ErrCaptchaVerificationFailed, code, message)
	}

	// 用户滑动失败，不算调用错误
	return false, nil
}
