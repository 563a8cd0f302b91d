package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"Kinship/pkg/errors"
	"Kinship/pkg/response"
	"Kinship/pkg/token"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

// NewAuthMiddleware 基于签发器构造 JWT 校验中间件，只接受 access token
func NewAuthMiddleware(signer *token.Signer) (*jwt.HertzJWTMiddleware, error) {
	if signer == nil {
		return nil, errors.ErrTokenGeneratorNotInitialized
	}

	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "Kinship API",
		Key:         signer.Secret,
		Timeout:     signer.AccessTimeout,
		IdentityKey: IdentityKey,
		TimeFunc:    signer.Now,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			uid, ok := claims[IdentityKey].(string)
			if !ok || uid == "" {
				return nil
			}
			return uid
		},

		// refresh token 不能当 access token 用；租户以 token 中的为准
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			if data == nil {
				return false
			}
			claims := jwt.ExtractClaims(ctx, c)
			if token.IsRefresh(claims) {
				return false
			}
			if tid, ok := claims[token.TenantKey].(string); ok && tid != "" {
				c.Set(TenantKey, tid)
			}
			return true
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			def := errors.Unauthorized
			if code == http.StatusForbidden {
				code = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(code, response.ErrorResponse{
				Error: response.ErrorDetail{Code: def.Code, Message: message},
			})
		},

		TokenLookup:   "header: Authorization, query: token, cookie: jwt",
		TokenHeadName: "Bearer",
	})
}

func initAuthMiddleware() error {
	mw, err := NewAuthMiddleware(token.Default())
	if err != nil {
		return fmt.Errorf("init auth middleware: %w", err)
	}
	authMiddleware = mw
	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetUserID 从请求上下文中获取用户ID（public_id，字符串格式）
func GetUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	if !ok {
		return "", false
	}

	return id, true
}
