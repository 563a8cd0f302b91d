package model

import (
	"time"

	"Kinship/internal/wizard"
)

// WizardSessionSnapshot 向导会话在 Redis 中的快照，进程重启后据此恢复控制器
type WizardSessionSnapshot struct {
	SessionID string          `json:"session_id"`
	TenantID  string          `json:"tenant_id"`
	State     wizard.Snapshot `json:"state"`
	SavedAt   time.Time       `json:"saved_at"`
}
