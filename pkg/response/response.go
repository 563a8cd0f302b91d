package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"Kinship/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

var statusByCode = map[string]int{
	errors.AuthInvalidCredentials.Code: http.StatusUnauthorized,
	errors.Unauthorized.Code:           http.StatusUnauthorized,
	errors.AuthEmailInUse.Code:         http.StatusConflict,
	errors.VerificationCodeUsed.Code:   http.StatusConflict,

	errors.AuthWeakPassword.Code:           http.StatusBadRequest,
	errors.AuthInvalidEmail.Code:           http.StatusBadRequest,
	errors.AuthPopupClosed.Code:            http.StatusBadRequest,
	errors.AuthPopupBlocked.Code:           http.StatusBadRequest,
	errors.InvalidUserID.Code:              http.StatusBadRequest,
	errors.TenantInvalid.Code:              http.StatusBadRequest,
	errors.VerificationCodeExpired.Code:    http.StatusBadRequest,
	errors.VerificationCodeInvalid.Code:    http.StatusBadRequest,
	errors.VerificationSliderFailed.Code:   http.StatusBadRequest,
	errors.OnboardingStepInvalid.Code:      http.StatusBadRequest,
	errors.OnboardingAccountMissing.Code:   http.StatusBadRequest,
	errors.WizardFieldReserved.Code:        http.StatusBadRequest,
	errors.UploadTypeUnsupported.Code:      http.StatusBadRequest,
	errors.UploadFieldInvalid.Code:         http.StatusBadRequest,
	errors.InvalidRequest.Code:             http.StatusBadRequest,
	errors.VerificationNotFound.Code:       http.StatusNotFound,
	errors.OnboardingProgressNotFound.Code: http.StatusNotFound,
	errors.WizardSessionNotFound.Code:      http.StatusNotFound,

	errors.CSRFTokenInvalid.Code:           http.StatusForbidden,
	errors.UploadTooLarge.Code:             http.StatusRequestEntityTooLarge,
	errors.VerificationRateLimited.Code:    http.StatusTooManyRequests,
	errors.VerificationSliderRequired.Code: http.StatusTooManyRequests,
	errors.TooManyRequests.Code:            http.StatusTooManyRequests,

	errors.IdentityUnavailable.Code: http.StatusServiceUnavailable,
	errors.EmailDeliveryFailed.Code: http.StatusBadGateway,
	errors.UploadFailed.Code:        http.StatusBadGateway,
}

// Resolve 从错误链中取出业务错误及 HTTP 状态；未知错误统一为 500
func Resolve(err error) (errors.Definition, int) {
	var def errors.Definition
	if !stderrors.As(err, &def) {
		return errors.Internal, http.StatusInternalServerError
	}
	if status, ok := statusByCode[def.Code]; ok {
		return def, status
	}
	return def, http.StatusInternalServerError
}

// Error 返回错误响应，内部错误不向客户端暴露原始信息
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	def, status := Resolve(err)
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    def.Code,
			Message: def.Message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
