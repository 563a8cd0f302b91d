package model

import "strconv"

// UserStatus 用户状态枚举
type UserStatus string

const (
	UserStatusOnboarding UserStatus = "onboarding" // 已注册，引导未完成
	UserStatusActive     UserStatus = "active"     // 引导完成，正常使用
)

// User 用户模型，同一租户内邮箱唯一
type User struct {
	BaseModel
	PublicID         int64      `gorm:"uniqueIndex;not null" json:"public_id"`
	TenantID         string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_users_tenant_email,priority:1;index:idx_users_tenant_subject,priority:1" json:"tenant_id"`
	Email            string     `gorm:"type:varchar(254);not null;uniqueIndex:idx_users_tenant_email,priority:2" json:"email"`
	EmailVerified    bool       `gorm:"not null;default:false" json:"email_verified"`
	PasswordHash     string     `gorm:"type:varchar(128);not null;default:''" json:"-"` // 仅第三方登录的用户为空
	FederatedSubject *string    `gorm:"type:varchar(128);index:idx_users_tenant_subject,priority:2" json:"-"`
	DisplayName      string     `gorm:"type:varchar(64);not null;default:''" json:"display_name"`
	AvatarURL        string     `gorm:"type:varchar(512);not null;default:''" json:"avatar_url"`
	Status           UserStatus `gorm:"type:varchar(16);not null;default:'onboarding';index:idx_users_status" json:"status"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// UserIDString 对外暴露的用户 ID
func (u *User) UserIDString() string {
	return strconv.FormatInt(u.PublicID, 10)
}

// Identity 身份服务认证成功后的结果
type Identity struct {
	UserID        string `json:"user_id"`
	TenantID      string `json:"tenant_id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	IsNewUser     bool   `json:"is_new_user"`
}

// IdentityFromUser 由用户记录构造 Identity
func IdentityFromUser(u *User, isNew bool) *Identity {
	return &Identity{
		UserID:        u.UserIDString(),
		TenantID:      u.TenantID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		EmailVerified: u.EmailVerified,
		IsNewUser:     isNew,
	}
}
