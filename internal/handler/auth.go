package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"

	"Kinship/internal/middleware"
	"Kinship/internal/model/dto"
	"Kinship/internal/service"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/response"
)

func authResponse(res *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		User:         dto.NewUserSnapshot(res.Identity),
	}
}

// SignUp 邮箱密码注册
// POST /v1/auth/signup
func SignUp(ctx context.Context, c *app.RequestContext) {
	var req dto.SignUpRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	res, err := service.Auth().SignUp(ctx, middleware.GetTenantID(c), req.Email, req.Password, req.DisplayName)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, authResponse(res))
}

// SignIn 邮箱密码登录
// POST /v1/auth/signin
func SignIn(ctx context.Context, c *app.RequestContext) {
	var req dto.SignInRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	res, err := service.Auth().SignIn(ctx, middleware.GetTenantID(c), req.Email, req.Password)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, authResponse(res))
}

// FederatedSignIn 第三方登录；用户主动关闭弹窗不算错误，返回 204
// POST /v1/auth/federated
func FederatedSignIn(ctx context.Context, c *app.RequestContext) {
	var req dto.FederatedSignInRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	res, err := service.Auth().Federated(ctx, middleware.GetTenantID(c), service.FederatedRequest{
		Code:  req.Code,
		Error: req.Error,
	})
	if errors.Is(err, pkgerrors.AuthPopupClosed) {
		response.NoContent(ctx, c)
		return
	}
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, authResponse(res))
}

// RefreshToken 刷新访问令牌，旧的 refresh token 随即失效
// POST /v1/auth/token/refresh
func RefreshToken(ctx context.Context, c *app.RequestContext) {
	var req dto.RefreshTokenRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	pair, err := service.Auth().Refresh(ctx, req.RefreshToken)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, pair)
}
