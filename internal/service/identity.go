package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"Kinship/internal/model"
	"Kinship/internal/repository"
	"Kinship/internal/validation"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/federated"
	"Kinship/pkg/logger"
	"Kinship/utils"
)

// bcrypt 只使用前 72 字节
const maxPasswordBytes = 72

type IdentityOptions struct {
	PasswordMinLength int
	BcryptCost        int
	NextID            func() (int64, error)
}

// IdentityService 账号注册、登录与第三方登录
type IdentityService struct {
	users    repository.UserRepository
	provider federated.Provider
	opts     IdentityOptions
	// 用户不存在时也做一次比较，避免通过耗时判断邮箱是否注册
	dummyHash []byte
}

func NewIdentityService(users repository.UserRepository, provider federated.Provider, opts IdentityOptions) *IdentityService {
	if opts.PasswordMinLength <= 0 {
		opts.PasswordMinLength = validation.DefaultOptions().PasswordMinLength
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("kinship-dummy-password"), opts.BcryptCost)
	return &IdentityService{users: users, provider: provider, opts: opts, dummyHash: dummy}
}

// SignUpWithPassword 创建账号
func (s *IdentityService) SignUpWithPassword(ctx context.Context, tenantID, email, password, displayName string) (*model.Identity, error) {
	addr := utils.NormalizeEmail(email)
	if !validation.IsEmail(addr) {
		return nil, pkgerrors.AuthInvalidEmail
	}
	if len(password) < s.opts.PasswordMinLength || len(password) > maxPasswordBytes {
		return nil, pkgerrors.AuthWeakPassword
	}

	_, err := s.users.GetByEmail(ctx, tenantID, addr)
	switch {
	case err == nil:
		return nil, pkgerrors.AuthEmailInUse
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		TenantID:     tenantID,
		Email:        addr,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		Status:       model.UserStatusOnboarding,
	}
	if err := s.create(ctx, user); err != nil {
		return nil, err
	}

	logger.Logger.Info("User signed up",
		zap.String("tenant_id", tenantID),
		zap.Int64("public_id", user.PublicID),
	)
	return model.IdentityFromUser(user, true), nil
}

// SignInWithPassword 邮箱密码登录；邮箱不存在与密码错误返回同一个错误
func (s *IdentityService) SignInWithPassword(ctx context.Context, tenantID, email, password string) (*model.Identity, error) {
	addr := utils.NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, tenantID, addr)
	if errors.Is(err, repository.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, pkgerrors.AuthInvalidCredentials
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}

	// 仅第三方登录的账号没有密码
	if user.PasswordHash == "" {
		return nil, pkgerrors.AuthInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, pkgerrors.AuthInvalidCredentials
	}

	return model.IdentityFromUser(user, false), nil
}

// FederatedRequest 前端弹窗回传的结果
type FederatedRequest struct {
	Code  string
	Error string
}

// SignInWithFederatedProvider 第三方登录。用户关闭弹窗返回 AuthPopupClosed，调用方应静默处理。
func (s *IdentityService) SignInWithFederatedProvider(ctx context.Context, tenantID string, req FederatedRequest) (*model.Identity, error) {
	switch req.Error {
	case "":
	case "popup_closed_by_user", "popup_closed", "access_denied", "cancelled":
		return nil, pkgerrors.AuthPopupClosed
	case "popup_blocked", "popup_blocked_by_browser":
		return nil, pkgerrors.AuthPopupBlocked
	default:
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, errors.New(req.Error))
	}
	if req.Code == "" {
		return nil, pkgerrors.AuthPopupClosed
	}
	if s.provider == nil {
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, federated.ErrNotConfigured)
	}

	profile, err := s.provider.Exchange(ctx, req.Code)
	if err != nil {
		logger.Logger.Warn("Federated code exchange failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}

	addr := utils.NormalizeEmail(profile.Email)
	if !validation.IsEmail(addr) {
		return nil, pkgerrors.AuthInvalidEmail
	}

	user, err := s.users.GetByFederatedSubject(ctx, tenantID, profile.Subject)
	if err == nil {
		return model.IdentityFromUser(user, false), nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}

	// 同邮箱已有账号时绑定第三方身份
	user, err = s.users.GetByEmail(ctx, tenantID, addr)
	switch {
	case err == nil:
		subject := profile.Subject
		user.FederatedSubject = &subject
		if profile.EmailVerified {
			user.EmailVerified = true
		}
		if user.DisplayName == "" {
			user.DisplayName = profile.Name
		}
		if user.AvatarURL == "" {
			user.AvatarURL = profile.Picture
		}
		if err := s.users.Update(ctx, user); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
		}
		return model.IdentityFromUser(user, false), nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}

	subject := profile.Subject
	user = &model.User{
		TenantID:         tenantID,
		Email:            addr,
		EmailVerified:    profile.EmailVerified,
		FederatedSubject: &subject,
		DisplayName:      profile.Name,
		AvatarURL:        profile.Picture,
		Status:           model.UserStatusOnboarding,
	}
	if err := s.create(ctx, user); err != nil {
		return nil, err
	}

	logger.Logger.Info("User signed up with federated provider",
		zap.String("tenant_id", tenantID),
		zap.Int64("public_id", user.PublicID),
	)
	return model.IdentityFromUser(user, true), nil
}

func (s *IdentityService) create(ctx context.Context, user *model.User) error {
	if s.opts.NextID == nil {
		return errors.New("identity service: id generator not configured")
	}
	id, err := s.opts.NextID()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}
	user.PublicID = id

	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return pkgerrors.AuthEmailInUse
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}
	return nil
}

// GetUser 按对外 ID 查询
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	publicID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, pkgerrors.InvalidUserID
	}
	user, err := s.users.GetByPublicID(ctx, publicID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, pkgerrors.OnboardingAccountMissing
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}
	return user, nil
}

func (s *IdentityService) update(ctx context.Context, userID string, mutate func(*model.User)) (*model.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	mutate(user)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.IdentityUnavailable, err)
	}
	return user, nil
}

func (s *IdentityService) MarkEmailVerified(ctx context.Context, userID string) error {
	_, err := s.update(ctx, userID, func(u *model.User) { u.EmailVerified = true })
	return err
}

// UpdateProfile avatarURL 为空时保留原值
func (s *IdentityService) UpdateProfile(ctx context.Context, userID, displayName, avatarURL string) error {
	_, err := s.update(ctx, userID, func(u *model.User) {
		u.DisplayName = strings.TrimSpace(displayName)
		if avatarURL != "" {
			u.AvatarURL = avatarURL
		}
	})
	return err
}

// Activate 引导完成
func (s *IdentityService) Activate(ctx context.Context, userID string) (*model.User, error) {
	return s.update(ctx, userID, func(u *model.User) { u.Status = model.UserStatusActive })
}
