package token

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"Kinship/config"
	"Kinship/pkg/errors"
)

const (
	IdentityKey = "uid"
	TenantKey   = "tid"

	typeKey     = "type"
	typeRefresh = "refresh"
)

// Pair 登录成功后下发的一对 token
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Signer 按配置签发 HS256 token；中间件使用同一份 Secret 校验
type Signer struct {
	Secret         []byte
	AccessTimeout  time.Duration
	RefreshTimeout time.Duration
	Now            func() time.Time
}

var shared *Signer

func Init() error {
	if config.Cfg.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is empty", errors.ErrTokenGeneratorNotInitialized)
	}
	shared = &Signer{
		Secret:         []byte(config.Cfg.JWTSecret),
		AccessTimeout:  time.Duration(config.Cfg.JWTExpireMinutes) * time.Minute,
		RefreshTimeout: time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour,
		Now:            time.Now,
	}
	return nil
}

// Default 返回 Init 创建的共享签发器
func Default() *Signer {
	return shared
}

// GenerateTokenPair 生成 access token 和 refresh token，两者都携带租户
func (s *Signer) GenerateTokenPair(userID, tenantID string) (*Pair, error) {
	if s == nil {
		return nil, errors.ErrTokenGeneratorNotInitialized
	}

	now := s.now()
	expiresAt := now.Add(s.AccessTimeout)

	access, err := s.sign(jwtv5.MapClaims{
		IdentityKey: userID,
		TenantKey:   tenantID,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refresh, err := s.sign(jwtv5.MapClaims{
		IdentityKey: userID,
		TenantKey:   tenantID,
		typeKey:     typeRefresh,
		"jti":       uuid.NewString(), // 同一秒内轮换也得到不同的 token
		"iat":       now.Unix(),
		"exp":       now.Add(s.RefreshTimeout).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.AccessTimeout.Seconds()),
	}, nil
}

// ValidateRefreshToken 校验 refresh token，返回用户与租户
func (s *Signer) ValidateRefreshToken(tokenString string) (userID, tenantID string, err error) {
	if s == nil {
		return "", "", errors.ErrTokenGeneratorNotInitialized
	}

	token, err := jwtv5.Parse(tokenString, func(token *jwtv5.Token) (interface{}, error) {
		if token.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return s.Secret, nil
	}, jwtv5.WithTimeFunc(s.now))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", "", errors.ErrInvalidTokenClaims
	}

	if t, _ := claims[typeKey].(string); t != typeRefresh {
		return "", "", errors.ErrInvalidTokenType
	}

	userID, ok = claims[IdentityKey].(string)
	if !ok || userID == "" {
		return "", "", errors.ErrUserIDNotFound
	}
	tenantID, _ = claims[TenantKey].(string)
	return userID, tenantID, nil
}

// IsRefresh 判断 claims 是否来自 refresh token，中间件据此拒绝把它当 access token 用
func IsRefresh(claims map[string]interface{}) bool {
	t, _ := claims[typeKey].(string)
	return t == typeRefresh
}

func (s *Signer) sign(claims jwtv5.MapClaims) (string, error) {
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.Secret)
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
