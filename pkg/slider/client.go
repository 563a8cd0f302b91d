package slider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/pkg/errors"
	"Kinship/pkg/logger"
)

// Client 滑块验证客户端
type Client interface {
	// Verify 校验 captchaVerifyParam；第一个返回值表示用户是否通过
	Verify(ctx context.Context, captchaVerifyParam, sceneID string) (bool, error)
}

var (
	sliderClient Client
	sliderOnce   sync.Once
	sliderErr    error
)

// Init 按 CAPTCHA_PROVIDER 初始化
func Init() error {
	sliderOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.CaptchaProvider {
		case "aliyun":
			sliderClient, sliderErr = NewAliyunClient()
		case "none":
			sliderClient = &MockClient{}
		default:
			sliderErr = fmt.Errorf("%w: %s", errors.ErrUnsupportedCaptchaProvider, cfg.CaptchaProvider)
		}

		if sliderErr != nil {
			logger.Logger.Error("Failed to initialize slider client", zap.Error(sliderErr))
			return
		}

		logger.Logger.Info("Slider client initialized successfully",
			zap.String("provider", cfg.CaptchaProvider),
		)
	})

	return sliderErr
}

func GetClient() Client {
	if sliderClient == nil {
		panic("Slider client not initialized, call slider.Init() first")
	}
	return sliderClient
}

// Lookup 未初始化或初始化失败时返回 nil
func Lookup() Client {
	if sliderErr != nil || sliderClient == nil {
		return nil
	}
	return sliderClient
}
