package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}

func TestHashEmailIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, HashEmail("ada@example.com"), HashEmail("ADA@example.com"))
	assert.Len(t, HashEmail("ada@example.com"), 64)
}

func TestValidateTenantID(t *testing.T) {
	assert.True(t, ValidateTenantID("acme"))
	assert.True(t, ValidateTenantID("acme-eu-1"))
	assert.False(t, ValidateTenantID("-acme"))
	assert.False(t, ValidateTenantID("Acme"))
	assert.False(t, ValidateTenantID(""))
}

func TestUntilNextDay(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Minute, UntilNextDay(now))
	assert.Equal(t, "2026-03-01", DateKey(now))
}
