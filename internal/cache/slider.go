package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	ri "github.com/redis/go-redis/v9"

	"Kinship/storage/redis"
)

/*
1. 请求发送验证码，当日次数超过阈值
   → 返回 VERIFICATION_SLIDER_REQUIRED
2. 前端展示滑块，拿到 captchaVerifyParam
   POST /v1/auth/email/verify-slider
3. 服务端校验通过后签发一次性 slider_token（按邮箱哈希绑定）
4. 再次请求发送验证码并携带 slider_token，使用后即失效
*/

const sliderPrefix = "slider"

type SliderTokenStore struct {
	rdb ri.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewSliderTokenStore(rdb ri.Cmdable, ttl time.Duration) *SliderTokenStore {
	return &SliderTokenStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// IssueToken 为 subject（邮箱哈希）签发一次性 token，覆盖旧的
func (s *SliderTokenStore) IssueToken(ctx context.Context, subject string) (string, time.Time, error) {
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, redis.Key(sliderPrefix, "verify", subject), token, s.ttl).Err(); err != nil {
		return "", time.Time{}, err
	}
	return token, s.now().Add(s.ttl), nil
}

// ConsumeToken 校验并删除 token
func (s *SliderTokenStore) ConsumeToken(ctx context.Context, subject, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	stored, err := s.rdb.GetDel(ctx, redis.Key(sliderPrefix, "verify", subject)).Result()
	if errors.Is(err, ri.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == token, nil
}
