package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"Kinship/internal/middleware"
	"Kinship/internal/service"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/response"
)

// renderWizard 每次响应都带上最新的 CSRF token
func renderWizard(ctx context.Context, c *app.RequestContext, view *service.WizardView, err error) {
	if err == nil && view.SessionID != middleware.WizardSessionID(c) {
		if saveErr := middleware.SetWizardSessionID(c, view.SessionID); saveErr != nil {
			logger.Logger.Error("Failed to save wizard session cookie", zap.Error(saveErr))
			err = saveErr
		}
	}
	middleware.CSRFToken(c)

	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

func wizardSession(ctx context.Context, c *app.RequestContext) (string, bool) {
	id := middleware.WizardSessionID(c)
	if id == "" {
		middleware.CSRFToken(c)
		response.Error(ctx, c, pkgerrors.WizardSessionNotFound)
		return "", false
	}
	return id, true
}

// StartWizard 继续 cookie 中的会话，没有则新建
// POST /v1/onboarding/wizard
func StartWizard(ctx context.Context, c *app.RequestContext) {
	view, err := service.Wizard().Start(ctx, middleware.GetTenantID(c), middleware.WizardSessionID(c))
	renderWizard(ctx, c, view, err)
}

// ResumeWizard 已登录用户按保存的进度重建会话
// POST /v1/onboarding/wizard/resume
func ResumeWizard(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUserID(ctx, c)
	if !ok {
		return
	}
	view, err := service.Wizard().Resume(ctx, middleware.GetTenantID(c), userID)
	renderWizard(ctx, c, view, err)
}

// GetWizard 当前会话状态；也用于获取 CSRF token
// GET /v1/onboarding/wizard
func GetWizard(ctx context.Context, c *app.RequestContext) {
	id, ok := wizardSession(ctx, c)
	if !ok {
		return
	}
	view, err := service.Wizard().Get(ctx, middleware.GetTenantID(c), id)
	renderWizard(ctx, c, view, err)
}

// UpdateWizardData 合并表单字段
// PATCH /v1/onboarding/wizard/data
func UpdateWizardData(ctx context.Context, c *app.RequestContext) {
	id, ok := wizardSession(ctx, c)
	if !ok {
		return
	}
	var partial map[string]any
	if err := c.BindJSON(&partial); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	view, err := service.Wizard().UpdateData(ctx, middleware.GetTenantID(c), id, partial)
	renderWizard(ctx, c, view, err)
}

// NextWizardStep 提交当前步骤
// POST /v1/onboarding/wizard/next
func NextWizardStep(ctx context.Context, c *app.RequestContext) {
	id, ok := wizardSession(ctx, c)
	if !ok {
		return
	}
	view, err := service.Wizard().Next(ctx, middleware.GetTenantID(c), id)
	renderWizard(ctx, c, view, err)
}

// PreviousWizardStep 返回上一步
// POST /v1/onboarding/wizard/previous
func PreviousWizardStep(ctx context.Context, c *app.RequestContext) {
	id, ok := wizardSession(ctx, c)
	if !ok {
		return
	}
	view, err := service.Wizard().Previous(ctx, middleware.GetTenantID(c), id)
	renderWizard(ctx, c, view, err)
}

// UploadWizardFile 上传头像或社区图片，表单字段 file
// POST /v1/onboarding/wizard/uploads/:field
func UploadWizardFile(ctx context.Context, c *app.RequestContext) {
	id, ok := wizardSession(ctx, c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BindError(ctx, c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BindError(ctx, c, err)
		return
	}
	defer f.Close()

	view, err := service.Wizard().Upload(ctx, middleware.GetTenantID(c), id, c.Param("field"), f)
	renderWizard(ctx, c, view, err)
}
