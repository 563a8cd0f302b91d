package dto

import (
	"time"

	"Kinship/internal/model"
)

// ========== Auth 相关 DTO ==========

// SignUpRequest 邮箱密码注册
type SignUpRequest struct {
	Email       string `json:"email" vd:"len($)>0"`
	Password    string `json:"password" vd:"len($)>0"`
	DisplayName string `json:"display_name"`
}

// SignInRequest 邮箱密码登录
type SignInRequest struct {
	Email    string `json:"email" vd:"len($)>0"`
	Password string `json:"password" vd:"len($)>0"`
}

// FederatedSignInRequest 第三方弹窗回调结果；用户关闭弹窗时 code 为空、error 有值
type FederatedSignInRequest struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// RefreshTokenRequest 刷新 token
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" vd:"len($)>0"`
}

// UserSnapshot 登录时返回的用户快照
type UserSnapshot struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	IsNewUser     bool   `json:"is_new_user"`
}

func NewUserSnapshot(id *model.Identity) UserSnapshot {
	return UserSnapshot{
		ID:            id.UserID,
		TenantID:      id.TenantID,
		Email:         id.Email,
		DisplayName:   id.DisplayName,
		AvatarURL:     id.AvatarURL,
		EmailVerified: id.EmailVerified,
		IsNewUser:     id.IsNewUser,
	}
}

// AuthResponse 登录或注册成功
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         UserSnapshot `json:"user"`
}

// ========== 邮箱验证码 ==========

// SendCodeRequest 发送验证码；超过阈值后需要带上滑块 token
type SendCodeRequest struct {
	SliderToken string `json:"slider_token,omitempty"`
}

// SendCodeResponse 发送结果
type SendCodeResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	SentToday int       `json:"sent_today"`
}

// VerifySliderRequest 滑块验证请求
type VerifySliderRequest struct {
	Email              string `json:"email" vd:"len($)>0"`
	SceneID            string `json:"scene_id"`
	CaptchaVerifyParam string `json:"captcha_verify_param" vd:"len($)>0"`
}

// VerifySliderResponse 滑块验证响应
type VerifySliderResponse struct {
	SliderVerificationToken string    `json:"slider_verification_token"`
	ExpiresAt               time.Time `json:"expires_at"`
}

// VerifyCodeRequest 校验验证码
type VerifyCodeRequest struct {
	Code string `json:"code" vd:"len($)>0"`
}

// VerifyCodeResponse 校验成功
type VerifyCodeResponse struct {
	EmailVerified bool       `json:"email_verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}
