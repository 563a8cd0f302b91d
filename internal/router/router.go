package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/route"

	"Kinship/config"
	"Kinship/internal/handler"
	"Kinship/internal/middleware"
)

// Options 路由依赖的中间件；测试中替换认证与限流
type Options struct {
	Auth         app.HandlerFunc
	AuthLimit    app.HandlerFunc
	VerifyLimit  app.HandlerFunc
	Session      []app.HandlerFunc
	Tenant       app.HandlerFunc
	Observe      []app.HandlerFunc
	DisableLimit bool
}

// DefaultOptions 按全局配置组装
func DefaultOptions() Options {
	cfg := config.Cfg
	return Options{
		Auth:        middleware.AuthMiddleware(),
		AuthLimit:   middleware.AuthRateLimitMiddleware(),
		VerifyLimit: middleware.VerificationRateLimitMiddleware(),
		Session: middleware.WizardSessionMiddlewares(middleware.SessionConfig{
			SessionSecret: cfg.SessionSecret,
			CSRFSecret:    cfg.CSRFSecret,
			Secure:        cfg.IsProduction(),
			MaxAge:        cfg.WizardSessionIdleMinutes * 60,
		}),
		Tenant:       middleware.TenantMiddleware(cfg.TenantDefault),
		Observe:      []app.HandlerFunc{middleware.OpenTelemetryMiddleware()},
		DisableLimit: !cfg.RateLimitEnabled,
	}
}

func Register(r *route.Engine, opts Options) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(opts.Observe...)

	r.GET("/healthz", handler.Healthz)

	v1 := r.Group("/v1", opts.Tenant)

	authLimit, verifyLimit := []app.HandlerFunc{opts.AuthLimit}, []app.HandlerFunc{opts.VerifyLimit}
	if opts.DisableLimit {
		authLimit, verifyLimit = nil, nil
	}

	// 认证相关路由
	auth := v1.Group("/auth")
	{
		auth.POST("/signup", append(authLimit, handler.SignUp)...)
		auth.POST("/signin", append(authLimit, handler.SignIn)...)
		auth.POST("/federated", append(authLimit, handler.FederatedSignIn)...)
		auth.POST("/token/refresh", append(authLimit, handler.RefreshToken)...)

		// 邮箱验证码
		email := auth.Group("/email", verifyLimit...)
		{
			email.POST("/send-code", opts.Auth, handler.SendEmailCode)
			email.POST("/verify-slider", handler.VerifySlider)
			email.POST("/verify", opts.Auth, handler.VerifyEmailCode)
		}
	}

	onboarding := v1.Group("/onboarding")
	{
		// 向导会话存放在 cookie 中，修改类请求需要 CSRF token
		wizard := onboarding.Group("/wizard", opts.Session...)
		{
			wizard.POST("", handler.StartWizard)
			wizard.GET("", handler.GetWizard)
			wizard.PATCH("/data", handler.UpdateWizardData)
			wizard.POST("/next", handler.NextWizardStep)
			wizard.POST("/previous", handler.PreviousWizardStep)
			wizard.POST("/uploads/:field", handler.UploadWizardFile)
			wizard.POST("/resume", opts.Auth, handler.ResumeWizard)
		}

		progress := onboarding.Group("/progress", opts.Auth)
		{
			progress.GET("", handler.GetProgress)
			progress.PUT("/:step", handler.SaveProgressStep)
		}
	}

	v1.POST("/uploads/:field", opts.Auth, handler.UploadImage)
}
