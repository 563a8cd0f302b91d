package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/internal/cache"
	"Kinship/internal/queue"
	"Kinship/internal/repository"
	"Kinship/internal/validation"
	"Kinship/pkg/blob"
	"Kinship/pkg/email"
	"Kinship/pkg/federated"
	"Kinship/pkg/logger"
	"Kinship/pkg/slider"
	"Kinship/pkg/snowflake"
	"Kinship/pkg/token"
	"Kinship/storage/database"
	"Kinship/storage/redis"
)

const (
	documentCacheTTL = 10 * time.Minute
	sliderTokenTTL   = 10 * time.Minute
)

// Container 进程内共享的服务实例
type Container struct {
	Users        repository.UserRepository
	Docs         repository.DocumentStore
	Identity     *IdentityService
	Auth         *AuthService
	Verification *VerificationService
	Progress     *OnboardingService
	Notification *NotificationService
	Uploads      *UploadService
	Wizard       *WizardService
}

var (
	container     *Container
	containerOnce sync.Once
)

// Init 在存储层与各客户端初始化之后调用，组装所有服务
func Init() {
	containerOnce.Do(func() {
		cfg := config.Cfg
		db := database.DB()
		rdb := redis.Client()

		users := repository.NewPostgresUserRepository(db)
		docs := cache.NewCachedDocumentStore(repository.NewPostgresDocumentStore(db), rdb, documentCacheTTL)

		var publisher EmailPublisher
		if cfg.QueueDelivery() {
			publisher = queue.NewProducer()
		}
		notification := NewNotificationService(email.Lookup(), publisher, nil)

		validationOpts := validation.Options{
			PasswordMinLength: cfg.PasswordMinLength,
			MaxInvites:        cfg.MaxInvites,
		}

		identity := NewIdentityService(users, federated.NewOAuth2Provider(federated.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			AuthURL:      cfg.OAuthAuthURL,
			TokenURL:     cfg.OAuthTokenURL,
			UserInfoURL:  cfg.OAuthUserInfoURL,
			RedirectURL:  cfg.OAuthRedirectURL,
		}), IdentityOptions{
			PasswordMinLength: cfg.PasswordMinLength,
			NextID:            snowflake.NextID,
		})

		refreshTTL := time.Duration(cfg.JWTRefreshDays) * 24 * time.Hour
		auth := NewAuthService(identity, token.Default(), cache.NewRefreshTokenStore(rdb, refreshTTL))

		verification := NewVerificationService(
			docs,
			notification,
			cache.NewSendCounter(rdb),
			cache.NewSliderTokenStore(rdb, sliderTokenTTL),
			slider.Lookup(),
			VerificationOptions{
				TTL:             time.Duration(cfg.VerificationCodeTTLMinutes) * time.Minute,
				MaxDaily:        cfg.VerificationMaxDaily,
				SliderThreshold: cfg.VerificationSliderThreshold,
				SceneID:         cfg.CaptchaSceneID,
			},
		)

		progress := NewOnboardingService(docs, nil)
		uploads := NewUploadService(blob.Lookup(), cfg.UploadMaxBytes, nil)
		idleTTL := time.Duration(cfg.WizardSessionIdleMinutes) * time.Minute

		wizardSvc := NewWizardService(WizardDeps{
			Identity:     identity,
			Verification: verification,
			Progress:     progress,
			Docs:         docs,
			Mailer:       notification,
			Snapshots:    cache.NewWizardSnapshotStore(rdb, idleTTL),
			Tokens:       auth,
			Uploads:      uploads,
		}, WizardOptions{
			TransitionDelay: time.Duration(cfg.WizardTransitionMS) * time.Millisecond,
			IdleTTL:         idleTTL,
			Validation:      validationOpts,
			AppBaseURL:      cfg.AppBaseURL,
		})

		container = &Container{
			Users:        users,
			Docs:         docs,
			Identity:     identity,
			Auth:         auth,
			Verification: verification,
			Progress:     progress,
			Notification: notification,
			Uploads:      uploads,
			Wizard:       wizardSvc,
		}

		logger.Logger.Info("Services initialized",
			zap.String("email_delivery", cfg.EmailDeliveryMode),
			zap.Duration("wizard_idle_ttl", idleTTL),
		)
	})
}

// StartBackground 启动会话回收，ctx 取消时停止
func StartBackground(ctx context.Context) {
	c := Get()
	go c.Wizard.RunSweeper(ctx, time.Minute)
}

// Set 测试或自定义组装时替换容器
func Set(c *Container) {
	container = c
}

func Get() *Container {
	if container == nil {
		panic("services not initialized, call service.Init() first")
	}
	return container
}

func Identity() *IdentityService         { return Get().Identity }
func Auth() *AuthService                 { return Get().Auth }
func Verification() *VerificationService { return Get().Verification }
func Onboarding() *OnboardingService     { return Get().Progress }
func Notification() *NotificationService { return Get().Notification }
func Uploads() *UploadService            { return Get().Uploads }
func Wizard() *WizardService             { return Get().Wizard }
