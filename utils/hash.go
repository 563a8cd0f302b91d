package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"Kinship/config"
)

// HashEmail 邮箱加盐哈希，作为限流计数等 Redis key 的一部分，避免明文邮箱出现在 key 中
// 盐 + ":" + email
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(config.Cfg.EmailHashSalt + ":" + NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}
