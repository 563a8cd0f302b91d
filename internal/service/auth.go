package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"Kinship/internal/model"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/token"
)

// TokenIssuer pkg/token.Signer 实现
type TokenIssuer interface {
	GenerateTokenPair(userID, tenantID string) (*token.Pair, error)
	ValidateRefreshToken(tokenString string) (userID, tenantID string, err error)
}

// RefreshTokenStore 每个用户只保留最新的 refresh token
type RefreshTokenStore interface {
	Save(ctx context.Context, tenantID, userID, refreshToken string) error
	Matches(ctx context.Context, tenantID, userID, refreshToken string) bool
}

// AuthResult 登录 / 注册成功的响应
type AuthResult struct {
	Identity *model.Identity `json:"user"`
	*token.Pair
}

// AuthService 在身份服务之上签发 JWT
type AuthService struct {
	identity *IdentityService
	tokens   TokenIssuer
	refresh  RefreshTokenStore
}

func NewAuthService(identity *IdentityService, tokens TokenIssuer, refresh RefreshTokenStore) *AuthService {
	return &AuthService{identity: identity, tokens: tokens, refresh: refresh}
}

func (s *AuthService) SignUp(ctx context.Context, tenantID, email, password, displayName string) (*AuthResult, error) {
	id, err := s.identity.SignUpWithPassword(ctx, tenantID, email, password, displayName)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, id)
}

func (s *AuthService) SignIn(ctx context.Context, tenantID, email, password string) (*AuthResult, error) {
	id, err := s.identity.SignInWithPassword(ctx, tenantID, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, id)
}

func (s *AuthService) Federated(ctx context.Context, tenantID string, req FederatedRequest) (*AuthResult, error) {
	id, err := s.identity.SignInWithFederatedProvider(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, id)
}

// Refresh 校验 refresh token 并轮换
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	userID, tenantID, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, pkgerrors.Unauthorized
	}
	if s.refresh != nil && !s.refresh.Matches(ctx, tenantID, userID, refreshToken) {
		return nil, pkgerrors.Unauthorized
	}

	pair, err := s.tokens.GenerateTokenPair(userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.store(ctx, tenantID, userID, pair.RefreshToken)
	return pair, nil
}

// IssueFor 为已认证的身份签发 token，向导注册成功后复用
func (s *AuthService) IssueFor(ctx context.Context, id *model.Identity) (*token.Pair, error) {
	res, err := s.issue(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.Pair, nil
}

func (s *AuthService) issue(ctx context.Context, id *model.Identity) (*AuthResult, error) {
	pair, err := s.tokens.GenerateTokenPair(id.UserID, id.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.store(ctx, id.TenantID, id.UserID, pair.RefreshToken)
	return &AuthResult{Identity: id, Pair: pair}, nil
}

// store 失败只记录日志，token 已签发
func (s *AuthService) store(ctx context.Context, tenantID, userID, refreshToken string) {
	if s.refresh == nil {
		return
	}
	if err := s.refresh.Save(ctx, tenantID, userID, refreshToken); err != nil {
		logger.Logger.Warn("Failed to store refresh token in Redis",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
