package errors

import (
	stderrors "errors"
	"fmt"
)

// 基础设施层的哨兵错误，不直接暴露给客户端。
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrInvalidTokenType             = stderrors.New("invalid token type")
	ErrUserIDNotFound               = stderrors.New("user id not found in token")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")

	ErrUnsupportedCaptchaProvider = stderrors.New("unsupported captcha provider")
	ErrCaptchaResponseNil         = stderrors.New("captcha response is nil")
	ErrCaptchaTokenRequired       = stderrors.New("captcha verify param is required")
	ErrCaptchaVerificationFailed  = stderrors.New("captcha verification failed")

	ErrUnsupportedEmailProvider = stderrors.New("unsupported email provider")
	ErrUnsupportedBlobProvider  = stderrors.New("unsupported blob provider")
)

// SkipMessageError 表示消息无需重试，消费者应直接 Ack。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return fmt.Sprintf("skip message: %s", e.Reason)
}

// NewSkipMessageError 创建跳过消息错误。
func NewSkipMessageError(reason string) error {
	return &SkipMessageError{Reason: reason}
}

// Wrap 将底层错误挂到业务错误下，errors.Is 对两者都成立。
func Wrap(def Definition, err error) error {
	if err == nil {
		return def
	}
	return fmt.Errorf("%w: %w", def, err)
}
