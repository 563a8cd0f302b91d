package model

import (
	"encoding/json"
	"time"
)

// OnboardingStep 引导步骤标识
type OnboardingStep string

const (
	StepAccount       OnboardingStep = "account"
	StepVerifyEmail   OnboardingStep = "verify_email"
	StepProfile       OnboardingStep = "profile"
	StepCommunity     OnboardingStep = "community"
	StepInviteMembers OnboardingStep = "invite_members"
)

// CanonicalSteps 引导步骤的固定顺序
var CanonicalSteps = []OnboardingStep{
	StepAccount,
	StepVerifyEmail,
	StepProfile,
	StepCommunity,
	StepInviteMembers,
}

// ParseOnboardingStep 解析步骤标识，不在固定列表中返回 false
func ParseOnboardingStep(s string) (OnboardingStep, bool) {
	for _, step := range CanonicalSteps {
		if string(step) == s {
			return step, true
		}
	}
	return "", false
}

// Index 步骤在固定顺序中的位置，未知步骤返回 -1
func (s OnboardingStep) Index() int {
	for i, step := range CanonicalSteps {
		if step == s {
			return i
		}
	}
	return -1
}

// 表单字段名，跨步骤共享一份数据
const (
	FieldEmail                = "email"
	FieldPassword             = "password"
	FieldConfirmPassword      = "confirmPassword"
	FieldAcceptTerms          = "acceptTerms"
	FieldVerificationCode     = "verificationCode"
	FieldDisplayName          = "displayName"
	FieldBio                  = "bio"
	FieldAvatar               = "avatar"    // 本次上传的头像
	FieldAvatarURL            = "avatarUrl" // 已有头像（如第三方登录带来的）
	FieldCommunityName        = "communityName"
	FieldCommunityDescription = "communityDescription"
	FieldCommunityPrivacy     = "communityPrivacy"
	FieldCommunityImage       = "communityImage"
	FieldInviteEmails         = "inviteEmails"

	// 以下由服务端写入，客户端不可修改
	FieldUserID        = "userId"
	FieldTenantID      = "tenantId"
	FieldEmailVerified = "emailVerified"
	FieldCommunityID   = "communityId"
)

// SecretFields 不落库、不回显的字段
var SecretFields = []string{FieldPassword, FieldConfirmPassword, FieldVerificationCode}

// ReservedFields 只允许服务端写入的字段
var ReservedFields = []string{FieldUserID, FieldTenantID, FieldEmailVerified, FieldCommunityID}

// 社区可见性
const (
	CommunityPublic     = "public"
	CommunityPrivate    = "private"
	CommunityInviteOnly = "invite_only"
)

// OnboardingProgress 按 (tenant, user) 存储的引导进度文档
type OnboardingProgress struct {
	TenantID       string                             `json:"tenant_id"`
	UserID         string                             `json:"user_id"`
	CurrentStep    OnboardingStep                     `json:"current_step"`
	CompletedSteps []OnboardingStep                   `json:"completed_steps"`
	StepData       map[OnboardingStep]json.RawMessage `json:"step_data"`
	CreatedAt      time.Time                          `json:"created_at"`
	UpdatedAt      time.Time                          `json:"updated_at"`
}

// HasCompleted 某一步是否已完成
func (p *OnboardingProgress) HasCompleted(step OnboardingStep) bool {
	for _, s := range p.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Community 引导中创建的社区文档
type Community struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Privacy     string    `json:"privacy"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
