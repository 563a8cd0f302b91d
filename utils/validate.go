package utils

import (
	"regexp"
	"strings"
)

var tenantPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// NormalizeEmail 去空白并转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateTenantID 租户标识：小写字母数字和连字符，最长 63
func ValidateTenantID(tenantID string) bool {
	return tenantPattern.MatchString(tenantID)
}
