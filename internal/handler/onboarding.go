package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"

	"Kinship/internal/middleware"
	"Kinship/internal/model"
	"Kinship/internal/model/dto"
	"Kinship/internal/service"
	"Kinship/internal/wizard"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/response"
)

// GetProgress 查询引导进度；尚无记录时从第一步开始
// GET /v1/onboarding/progress
func GetProgress(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUserID(ctx, c)
	if !ok {
		return
	}

	progress, err := service.Onboarding().LoadProgress(ctx, middleware.GetTenantID(c), userID)
	if err != nil && !errors.Is(err, pkgerrors.OnboardingProgressNotFound) {
		response.Error(ctx, c, err)
		return
	}

	next, pending := service.NextIncompleteStep(progress)
	response.Success(ctx, c, dto.ProgressResponse{
		Progress: progress,
		NextStep: next,
		Complete: !pending,
	})
}

// SaveProgressStep 直接保存某一步，机密字段与服务端字段丢弃
// PUT /v1/onboarding/progress/:step
func SaveProgressStep(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUserID(ctx, c)
	if !ok {
		return
	}
	step, ok := model.ParseOnboardingStep(c.Param("step"))
	if !ok {
		response.Error(ctx, c, pkgerrors.OnboardingStepInvalid)
		return
	}
	var req dto.SaveStepRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	payload := wizard.OnboardingData(req.Data).
		Without(model.SecretFields...).
		Without(model.ReservedFields...)
	progress, err := service.Onboarding().SaveStep(ctx, middleware.GetTenantID(c), userID, step, payload, req.Completed)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	next, pending := service.NextIncompleteStep(progress)
	response.Success(ctx, c, dto.ProgressResponse{
		Progress: progress,
		NextStep: next,
		Complete: !pending,
	})
}

// UploadImage 已登录用户在向导外上传图片，previous_url 为要替换的旧地址
// POST /v1/uploads/:field
func UploadImage(ctx context.Context, c *app.RequestContext) {
	if _, ok := currentUserID(ctx, c); !ok {
		return
	}
	kind, ok := service.UploadKindForField(c.Param("field"))
	if !ok {
		response.Error(ctx, c, pkgerrors.UploadFieldInvalid)
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

	obj, err := service.Uploads().Upload(ctx, middleware.GetTenantID(c), kind, f, c.PostForm("previous_url"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, dto.UploadResponse{URL: obj.URL, Key: obj.Key})
}
