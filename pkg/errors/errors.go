package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
// 值类型可比较，经 %w 包装后仍可用 errors.Is 判定。
type Definition struct {
	Code    string
	Message string
}

// 身份认证相关错误。
var (
	AuthInvalidCredentials = Definition{Code: "AUTH_INVALID_CREDENTIALS", Message: "Email or password is incorrect"}
	AuthEmailInUse         = Definition{Code: "AUTH_EMAIL_IN_USE", Message: "An account with this email already exists"}
	AuthWeakPassword       = Definition{Code: "AUTH_WEAK_PASSWORD", Message: "Password is too weak"}
	AuthInvalidEmail       = Definition{Code: "AUTH_INVALID_EMAIL", Message: "Email address is invalid"}
	AuthPopupClosed        = Definition{Code: "AUTH_POPUP_CLOSED", Message: "Sign-in popup was closed"}
	AuthPopupBlocked       = Definition{Code: "AUTH_POPUP_BLOCKED", Message: "Sign-in popup was blocked by the browser"}
	IdentityUnavailable    = Definition{Code: "IDENTITY_UNAVAILABLE", Message: "Identity service is temporarily unavailable"}
	Unauthorized           = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidUserID          = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
	TenantInvalid          = Definition{Code: "TENANT_INVALID", Message: "Tenant identifier is invalid"}
)

// 邮箱验证码错误。
var (
	VerificationNotFound       = Definition{Code: "VERIFICATION_NOT_FOUND", Message: "No verification code was requested"}
	VerificationCodeExpired    = Definition{Code: "VERIFICATION_CODE_EXPIRED", Message: "Verification code expired"}
	VerificationCodeInvalid    = Definition{Code: "VERIFICATION_CODE_INVALID", Message: "Verification code invalid"}
	VerificationCodeUsed       = Definition{Code: "VERIFICATION_CODE_USED", Message: "Verification code already used"}
	VerificationRateLimited    = Definition{Code: "VERIFICATION_RATE_LIMITED", Message: "Too many verification codes requested today"}
	VerificationSliderRequired = Definition{Code: "VERIFICATION_SLIDER_REQUIRED", Message: "Slider verification required"}
	VerificationSliderFailed   = Definition{Code: "VERIFICATION_SLIDER_FAILED", Message: "Slider verification failed"}
)

// 邮件投递错误。
var (
	EmailDeliveryFailed = Definition{Code: "EMAIL_DELIVERY_FAILED", Message: "Email could not be delivered"}
)

// 引导流程错误。
var (
	OnboardingStepInvalid      = Definition{Code: "ONBOARDING_STEP_INVALID", Message: "Onboarding step invalid"}
	OnboardingProgressNotFound = Definition{Code: "ONBOARDING_PROGRESS_NOT_FOUND", Message: "Onboarding progress not found"}
	OnboardingAccountMissing   = Definition{Code: "ONBOARDING_ACCOUNT_MISSING", Message: "Create an account before continuing"}
	WizardSessionNotFound      = Definition{Code: "WIZARD_SESSION_NOT_FOUND", Message: "Onboarding session not found or expired"}
	WizardFieldReserved        = Definition{Code: "WIZARD_FIELD_RESERVED", Message: "Field cannot be set directly"}
)

// 上传错误。
var (
	UploadTooLarge        = Definition{Code: "UPLOAD_TOO_LARGE", Message: "File is too large"}
	UploadTypeUnsupported = Definition{Code: "UPLOAD_TYPE_UNSUPPORTED", Message: "Only PNG, JPEG, GIF and WebP images are supported"}
	UploadFieldInvalid    = Definition{Code: "UPLOAD_FIELD_INVALID", Message: "Field does not accept uploads"}
	UploadFailed          = Definition{Code: "UPLOAD_FAILED", Message: "File could not be stored"}
)

// 通用错误。
var (
	InvalidRequest   = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	TooManyRequests  = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	CSRFTokenInvalid = Definition{Code: "CSRF_TOKEN_INVALID", Message: "CSRF token missing or invalid"}
	Internal         = Definition{Code: "INTERNAL_ERROR", Message: "Internal server error"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{}

func init() {
	for _, def := range []Definition{
		AuthInvalidCredentials, AuthEmailInUse, AuthWeakPassword, AuthInvalidEmail,
		AuthPopupClosed, AuthPopupBlocked, IdentityUnavailable, Unauthorized, InvalidUserID, TenantInvalid,
		VerificationNotFound, VerificationCodeExpired, VerificationCodeInvalid, VerificationCodeUsed,
		VerificationRateLimited, VerificationSliderRequired, VerificationSliderFailed,
		EmailDeliveryFailed,
		OnboardingStepInvalid, OnboardingProgressNotFound, OnboardingAccountMissing,
		WizardSessionNotFound, WizardFieldReserved,
		UploadTooLarge, UploadTypeUnsupported, UploadFieldInvalid, UploadFailed,
		InvalidRequest, TooManyRequests, CSRFTokenInvalid, Internal,
	} {
		Lookup[def.Code] = def
	}
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
