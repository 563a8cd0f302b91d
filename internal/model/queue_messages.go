package model

// 邮件类别，用于指标与日志
const (
	EmailCategoryVerification = "verification"
	EmailCategoryInvite       = "invite"
	EmailCategoryWelcome      = "welcome"
	EmailCategoryReminder     = "reminder"
)

// EmailMessage 邮件投递任务消息，队列模式下经 RabbitMQ 异步发送
type EmailMessage struct {
	MessageID string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id,omitempty"`
	Category  string `json:"category"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
}
