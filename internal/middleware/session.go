package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/csrf"
	"github.com/hertz-contrib/sessions"
	"github.com/hertz-contrib/sessions/cookie"

	"Kinship/pkg/errors"
	"Kinship/pkg/response"
)

const (
	SessionName     = "kinship_wizard"
	CSRFHeader      = "X-CSRF-Token"
	wizardSessionID = "wizard_session_id"
)

// SessionConfig 向导会话 cookie 配置
type SessionConfig struct {
	SessionSecret string
	CSRFSecret    string
	Secure        bool
	MaxAge        int
}

// WizardSessionMiddlewares 返回会话 cookie 与 CSRF 两个中间件，必须按顺序注册
func WizardSessionMiddlewares(cfg SessionConfig) []app.HandlerFunc {
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
	})

	return []app.HandlerFunc{
		sessions.New(SessionName, store),
		csrf.New(
			csrf.WithSecret(cfg.CSRFSecret),
			csrf.WithKeyLookUp("header:"+CSRFHeader),
			csrf.WithErrorFunc(func(ctx context.Context, c *app.RequestContext) {
				response.Error(ctx, c, errors.CSRFTokenInvalid)
				c.Abort()
			}),
		),
	}
}

// CSRFToken 生成当前会话的 CSRF token 并写入响应头
func CSRFToken(c *app.RequestContext) string {
	t := csrf.GetToken(c)
	c.Header(CSRFHeader, t)
	return t
}

// WizardSessionID 读取会话中的向导 id
func WizardSessionID(c *app.RequestContext) string {
	id, _ := sessions.Default(c).Get(wizardSessionID).(string)
	return id
}

// SetWizardSessionID 写入向导 id 并保存 cookie
func SetWizardSessionID(c *app.RequestContext, id string) error {
	s := sessions.Default(c)
	s.Set(wizardSessionID, id)
	return s.Save()
}
