package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"Kinship/internal/middleware"
	"Kinship/internal/model/dto"
	"Kinship/internal/service"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/response"
)

func currentUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return "", false
	}
	return userID, true
}

// SendEmailCode 向当前用户的邮箱发送验证码；已验证时直接返回
// POST /v1/auth/email/send-code
func SendEmailCode(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUserID(ctx, c)
	if !ok {
		return
	}
	var req dto.SendCodeRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	user, err := service.Identity().GetUser(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	if user.EmailVerified {
		response.Success(ctx, c, dto.VerifyCodeResponse{EmailVerified: true})
		return
	}

	res, err := service.Verification().IssueCode(ctx, service.IssueCodeRequest{
		TenantID:    middleware.GetTenantID(c),
		UserID:      userID,
		Email:       user.Email,
		SliderToken: req.SliderToken,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.SendCodeResponse{
		ExpiresAt: res.ExpiresAt,
		SentToday: res.SentToday,
	})
}

// VerifySlider 滑块验证
// POST /v1/auth/email/verify-slider
func VerifySlider(ctx context.Context, c *app.RequestContext) {
	var req dto.VerifySliderRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	tok, expiresAt, err := service.Verification().VerifySlider(ctx, req.Email, req.SceneID, req.CaptchaVerifyParam)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.VerifySliderResponse{
		SliderVerificationToken: tok,
		ExpiresAt:               expiresAt,
	})
}

// VerifyEmailCode 校验验证码并标记邮箱已验证
// POST /v1/auth/email/verify
func VerifyEmailCode(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUserID(ctx, c)
	if !ok {
		return
	}
	var req dto.VerifyCodeRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	record, err := service.Verification().VerifyCode(ctx, userID, strings.TrimSpace(req.Code))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	if err := service.Identity().MarkEmailVerified(ctx, userID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.VerifyCodeResponse{
		EmailVerified: true,
		VerifiedAt:    record.VerifiedAt,
	})
}
