package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "kin:wizard:session:***", sanitizeKey("kin:wizard:session:abc123"))
	assert.Equal(t, "kin:verify:count:hash:2026-01-01", sanitizeKey("kin:verify:count:hash:2026-01-01"))
}

func TestExtractKeysSkipsValues(t *testing.T) {
	keys := extractKeys([]interface{}{"set", "kin:lock:reminder:1", "value-without-colon", 60})
	assert.Equal(t, []string{"kin:lock:reminder:1"}, keys)
	assert.Nil(t, extractKeys([]interface{}{"ping"}))
}
