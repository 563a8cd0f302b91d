package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"Kinship/internal/model"
	"Kinship/internal/repository"
	"Kinship/internal/validation"
	"Kinship/pkg/email"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/metrics"
	"Kinship/utils"
)

// VerificationCollection 验证码记录所在集合，key 为 userID
const VerificationCollection = "email_verifications"

const (
	codeLength        = 6
	DefaultCodeTTL    = 15 * time.Minute
	defaultMaxDaily   = 10
	defaultSliderFrom = 3
)

// Mailer 邮件投递，同步发送或入队由实现决定
type Mailer interface {
	Send(ctx context.Context, msg *model.EmailMessage) error
}

// SendCounter 每日发送计数
type SendCounter interface {
	IncrSendCount(ctx context.Context, emailHash string) (int, error)
}

// SliderTokens 滑块通过后签发的一次性 token
type SliderTokens interface {
	IssueToken(ctx context.Context, subject string) (string, time.Time, error)
	ConsumeToken(ctx context.Context, subject, token string) (bool, error)
}

// SliderVerifier 第三方滑块校验，pkg/slider.Client 满足此接口
type SliderVerifier interface {
	Verify(ctx context.Context, captchaVerifyParam, sceneID string) (bool, error)
}

type VerificationOptions struct {
	TTL             time.Duration
	MaxDaily        int
	SliderThreshold int
	SceneID         string
	Now             func() time.Time
	GenerateCode    func() (string, error)
	HashEmail       func(string) string
}

type VerificationService struct {
	docs    repository.DocumentStore
	mailer  Mailer
	counter SendCounter
	tokens  SliderTokens
	slider  SliderVerifier
	opts    VerificationOptions
}

// NewVerificationService counter 为 nil 时不做频率限制，tokens/slider 为 nil 时不启用滑块
func NewVerificationService(
	docs repository.DocumentStore,
	mailer Mailer,
	counter SendCounter,
	tokens SliderTokens,
	slider SliderVerifier,
	opts VerificationOptions,
) *VerificationService {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCodeTTL
	}
	if opts.MaxDaily <= 0 {
		opts.MaxDaily = defaultMaxDaily
	}
	if opts.SliderThreshold <= 0 {
		opts.SliderThreshold = defaultSliderFrom
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = generateCode
	}
	if opts.HashEmail == nil {
		opts.HashEmail = utils.HashEmail
	}
	return &VerificationService{
		docs:    docs,
		mailer:  mailer,
		counter: counter,
		tokens:  tokens,
		slider:  slider,
		opts:    opts,
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type IssueCodeRequest struct {
	TenantID    string
	UserID      string
	Email       string
	SliderToken string
}

type IssueCodeResult struct {
	ExpiresAt time.Time
	// SentToday 含本次
	SentToday int
}

// IssueCode 生成验证码、写入记录并发送邮件。
// 发送失败时删除刚写入的记录，返回 EmailDeliveryFailed。
func (s *VerificationService) IssueCode(ctx context.Context, req IssueCodeRequest) (*IssueCodeResult, error) {
	if req.UserID == "" {
		return nil, pkgerrors.InvalidUserID
	}
	addr := utils.NormalizeEmail(req.Email)
	if !validation.IsEmail(addr) {
		return nil, pkgerrors.AuthInvalidEmail
	}

	sent, err := s.checkQuota(ctx, addr, req.SliderToken)
	if err != nil {
		return nil, err
	}

	code, err := s.opts.GenerateCode()
	if err != nil {
		return nil, err
	}

	now := s.opts.Now().UTC()
	record := &model.EmailVerification{
		UserID:    req.UserID,
		Email:     addr,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.TTL),
	}
	if err := s.docs.WriteDocument(ctx, VerificationCollection, req.UserID, record); err != nil {
		return nil, err
	}

	subject, html, err := email.RenderVerification(email.VerificationData{
		Code:       code,
		TTLMinutes: int(s.opts.TTL / time.Minute),
	})
	if err == nil {
		err = s.mailer.Send(ctx, &model.EmailMessage{
			TenantID: req.TenantID,
			UserID:   req.UserID,
			Category: model.EmailCategoryVerification,
			To:       addr,
			Subject:  subject,
			HTML:     html,
		})
	}
	if err != nil {
		if delErr := s.docs.DeleteDocument(ctx, VerificationCollection, req.UserID); delErr != nil {
			logger.Logger.Warn("Failed to remove undelivered verification record",
				zap.String("user_id", req.UserID),
				zap.Error(delErr),
			)
		}
		logger.Logger.Error("Failed to send verification email",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		if errors.Is(err, pkgerrors.EmailDeliveryFailed) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.EmailDeliveryFailed, err)
	}

	metrics.RecordVerificationIssued(ctx)
	logger.Logger.Info("Verification code issued",
		zap.String("tenant_id", req.TenantID),
		zap.String("user_id", req.UserID),
		zap.Int("sent_today", sent),
	)
	return &IssueCodeResult{ExpiresAt: record.ExpiresAt, SentToday: sent}, nil
}

// checkQuota 超过每日上限直接拒绝；超过滑块阈值时要求有效的一次性 slider token
func (s *VerificationService) checkQuota(ctx context.Context, addr, sliderToken string) (int, error) {
	if s.counter == nil {
		return 0, nil
	}

	hash := s.opts.HashEmail(addr)
	count, err := s.counter.IncrSendCount(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to check send count: %w", err)
	}

	if count > s.opts.MaxDaily {
		return count, pkgerrors.VerificationRateLimited
	}

	if count > s.opts.SliderThreshold && s.tokens != nil {
		if sliderToken == "" {
			return count, pkgerrors.VerificationSliderRequired
		}
		ok, err := s.tokens.ConsumeToken(ctx, hash, sliderToken)
		if err != nil {
			return count, fmt.Errorf("failed to check slider token: %w", err)
		}
		if !ok {
			return count, pkgerrors.VerificationSliderFailed
		}
	}
	return count, nil
}

// VerifySlider 校验滑块参数，通过后签发一次性 token
func (s *VerificationService) VerifySlider(ctx context.Context, addr, sceneID, captchaVerifyParam string) (string, time.Time, error) {
	if s.slider == nil || s.tokens == nil {
		return "", time.Time{}, pkgerrors.VerificationSliderFailed
	}
	addr = utils.NormalizeEmail(addr)
	if !validation.IsEmail(addr) {
		return "", time.Time{}, pkgerrors.AuthInvalidEmail
	}
	if s.opts.SceneID != "" && sceneID != s.opts.SceneID {
		return "", time.Time{}, pkgerrors.VerificationSliderFailed
	}

	ok, err := s.slider.Verify(ctx, captchaVerifyParam, sceneID)
	if err != nil {
		logger.Logger.Warn("Slider verification error", zap.Error(err))
		return "", time.Time{}, pkgerrors.VerificationSliderFailed
	}
	if !ok {
		return "", time.Time{}, pkgerrors.VerificationSliderFailed
	}

	token, expiresAt, err := s.tokens.IssueToken(ctx, s.opts.HashEmail(addr))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue slider token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyCode 依次检查：记录存在、未过期（过期即删除）、验证码匹配、未被使用
func (s *VerificationService) VerifyCode(ctx context.Context, userID, code string) (*model.EmailVerification, error) {
	if userID == "" {
		return nil, pkgerrors.InvalidUserID
	}

	var record model.EmailVerification
	err := s.docs.ReadDocument(ctx, VerificationCollection, userID, &record)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordVerificationAttempt(ctx, "not_found")
		return nil, pkgerrors.VerificationNotFound
	}
	if err != nil {
		return nil, err
	}

	now := s.opts.Now().UTC()
	if record.Expired(now) {
		if err := s.docs.DeleteDocument(ctx, VerificationCollection, userID); err != nil {
			return nil, err
		}
		metrics.RecordVerificationAttempt(ctx, "expired")
		return nil, pkgerrors.VerificationCodeExpired
	}

	if len(code) != codeLength || subtle.ConstantTimeCompare([]byte(code), []byte(record.Code)) != 1 {
		metrics.RecordVerificationAttempt(ctx, "invalid")
		return nil, pkgerrors.VerificationCodeInvalid
	}

	if record.Verified {
		metrics.RecordVerificationAttempt(ctx, "used")
		return nil, pkgerrors.VerificationCodeUsed
	}

	record.Verified = true
	record.VerifiedAt = &now
	if err := s.docs.WriteDocument(ctx, VerificationCollection, userID, &record); err != nil {
		return nil, err
	}

	metrics.RecordVerificationAttempt(ctx, "verified")
	return &record, nil
}
