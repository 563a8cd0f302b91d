package model

import "time"

// EmailVerification 邮箱验证码记录，每个用户最多一条，重新发送会覆盖
type EmailVerification struct {
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	Code       string     `json:"code"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Expired ExpiresAt 早于 now 才算过期，恰好相等时仍有效
func (v *EmailVerification) Expired(now time.Time) bool {
	return v.ExpiresAt.Before(now)
}
