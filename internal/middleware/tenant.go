package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"Kinship/pkg/errors"
	"Kinship/pkg/response"
	"Kinship/utils"
)

const (
	TenantHeader = "X-Tenant-ID"
	TenantKey    = "tenant_id"
)

// TenantMiddleware 从 X-Tenant-ID 解析租户，缺省使用 fallback
func TenantMiddleware(fallback string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		tenant := strings.ToLower(strings.TrimSpace(string(c.GetHeader(TenantHeader))))
		if tenant == "" {
			tenant = fallback
		}
		if !utils.ValidateTenantID(tenant) {
			response.Error(ctx, c, errors.TenantInvalid)
			c.Abort()
			return
		}

		c.Set(TenantKey, tenant)
		c.Next(ctx)
	}
}

// GetTenantID 认证路由上 token 中的租户会覆盖请求头
func GetTenantID(c *app.RequestContext) string {
	return c.GetString(TenantKey)
}
