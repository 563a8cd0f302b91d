package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"Kinship/internal/model"
	"Kinship/internal/validation"
	"Kinship/internal/wizard"
	"Kinship/pkg/email"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/metrics"
)

// CommunityCollection 引导中创建的社区，key 为 tenantID:userID
const CommunityCollection = "communities"

// OnboardingSteps 向导步骤定义，顺序与 model.CanonicalSteps 一致
func OnboardingSteps() []wizard.StepDefinition {
	return []wizard.StepDefinition{
		{
			Key:              string(model.StepAccount),
			Title:            "Create your account",
			Subtitle:         "Start with your email and a password",
			InputComponentID: "account-form",
		},
		{
			Key:              string(model.StepVerifyEmail),
			Title:            "Check your inbox",
			Subtitle:         "Enter the 6-digit code we sent you",
			InputComponentID: "verification-code",
		},
		{
			Key:              string(model.StepProfile),
			Title:            "Set up your profile",
			Subtitle:         "Let members know who you are",
			Media:            "profile-illustration",
			InputComponentID: "profile-form",
		},
		{
			Key:              string(model.StepCommunity),
			Title:            "Create your community",
			Description:      "You can change these settings later.",
			InputComponentID: "community-form",
		},
		{
			Key:              string(model.StepInviteMembers),
			Title:            "Invite members",
			Subtitle:         "Bring your people along",
			InputComponentID: "invite-list",
		},
	}
}

// stepAction 某一步离开前的业务动作，返回需要写回数据的字段
type stepAction func(ctx context.Context, sess *wizardSession, data wizard.OnboardingData) (map[string]any, error)

func (s *WizardService) actions() map[model.OnboardingStep]stepAction {
	return map[model.OnboardingStep]stepAction{
		model.StepAccount:       s.submitAccount,
		model.StepVerifyEmail:   s.submitVerification,
		model.StepProfile:       s.submitProfile,
		model.StepCommunity:     s.submitCommunity,
		model.StepInviteMembers: s.submitInvites,
	}
}

// advanceHook 先执行步骤动作，再保存去掉机密字段后的步骤数据
func (s *WizardService) advanceHook(sess *wizardSession) wizard.AdvanceHook {
	actions := s.actions()
	return func(ctx context.Context, index int, step wizard.StepDefinition, data wizard.OnboardingData) (wizard.OnboardingData, error) {
		key := model.OnboardingStep(step.Key)

		patch := map[string]any{}
		if action, ok := actions[key]; ok {
			out, err := action(ctx, sess, data)
			if err != nil {
				return nil, err
			}
			patch = out
		}

		merged := data.Clone()
		merged.Merge(patch)

		userID := validation.AsString(merged[model.FieldUserID])
		if userID == "" {
			return nil, pkgerrors.OnboardingAccountMissing
		}

		payload := s.schemas[key].Pick(merged, model.SecretFields...)
		if _, err := s.deps.Progress.SaveStep(ctx, sess.tenantID, userID, key, payload, true); err != nil {
			return nil, err
		}
		return patch, nil
	}
}

// submitAccount 注册账号并发送验证码；已注册时只在邮箱未验证时重发
func (s *WizardService) submitAccount(ctx context.Context, sess *wizardSession, data wizard.OnboardingData) (map[string]any, error) {
	userID := validation.AsString(data[model.FieldUserID])
	verified := isTrue(data[model.FieldEmailVerified])
	addr := validation.AsString(data[model.FieldEmail])

	if userID == "" {
		id, err := s.deps.Identity.SignUpWithPassword(ctx,
			sess.tenantID,
			addr,
			validation.AsString(data[model.FieldPassword]),
			validation.AsString(data[model.FieldDisplayName]),
		)
		if err != nil {
			return nil, err
		}
		userID, verified, addr = id.UserID, id.EmailVerified, id.Email

		// 立即写回，验证码发送失败后重试不会重复注册
		sess.ctrl.UpdateData(map[string]any{
			model.FieldUserID:        userID,
			model.FieldTenantID:      sess.tenantID,
			model.FieldEmailVerified: verified,
		})

		if s.deps.Tokens != nil {
			pair, err := s.deps.Tokens.IssueFor(ctx, id)
			if err != nil {
				logger.Logger.Warn("Failed to issue tokens for new account", zap.String("user_id", userID), zap.Error(err))
			} else {
				sess.setTokens(pair)
			}
		}
	}

	if !verified {
		if _, err := s.deps.Verification.IssueCode(ctx, IssueCodeRequest{
			TenantID: sess.tenantID,
			UserID:   userID,
			Email:    addr,
		}); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		model.FieldUserID:        userID,
		model.FieldTenantID:      sess.tenantID,
		model.FieldEmailVerified: verified,
	}, nil
}

func (s *WizardService) submitVerification(ctx context.Context, sess *wizardSession, data wizard.OnboardingData) (map[string]any, error) {
	if isTrue(data[model.FieldEmailVerified]) {
		return nil, nil
	}
	userID := validation.AsString(data[model.FieldUserID])
	if userID == "" {
		return nil, pkgerrors.OnboardingAccountMissing
	}

	if _, err := s.deps.Verification.VerifyCode(ctx, userID, strings.TrimSpace(validation.AsString(data[model.FieldVerificationCode]))); err != nil {
		return nil, err
	}
	if err := s.deps.Identity.MarkEmailVerified(ctx, userID); err != nil {
		return nil, err
	}
	return map[string]any{model.FieldEmailVerified: true}, nil
}

func (s *WizardService) submitProfile(ctx context.Context, sess *wizardSession, data wizard.OnboardingData) (map[string]any, error) {
	userID := validation.AsString(data[model.FieldUserID])
	if userID == "" {
		return nil, pkgerrors.OnboardingAccountMissing
	}

	avatar := validation.AsString(data[model.FieldAvatar])
	if avatar == "" {
		avatar = validation.AsString(data[model.FieldAvatarURL])
	}
	if err := s.deps.Identity.UpdateProfile(ctx, userID, validation.AsString(data[model.FieldDisplayName]), avatar); err != nil {
		return nil, err
	}
	return nil, nil
}

// submitCommunity 每个用户在引导中只创建一个社区，重复提交覆盖同一文档
func (s *WizardService) submitCommunity(ctx context.Context, sess *wizardSession, data wizard.OnboardingData) (map[string]any, error) {
	userID := validation.AsString(data[model.FieldUserID])
	if userID == "" {
		return nil, pkgerrors.OnboardingAccountMissing
	}

	id := validation.AsString(data[model.FieldCommunityID])
	if id == "" {
		id = s.opts.NewID()
	}
	privacy := validation.AsString(data[model.FieldCommunityPrivacy])
	if privacy == "" {
		privacy = model.CommunityPublic
	}

	community := &model.Community{
		ID:          id,
		TenantID:    sess.tenantID,
		OwnerID:     userID,
		Name:        strings.TrimSpace(validation.AsString(data[model.FieldCommunityName])),
		Description: strings.TrimSpace(validation.AsString(data[model.FieldCommunityDescription])),
		Privacy:     privacy,
		ImageURL:    validation.AsString(data[model.FieldCommunityImage]),
		CreatedAt:   s.opts.Now().UTC(),
	}
	if err := s.deps.Docs.WriteDocument(ctx, CommunityCollection, ProgressKey(sess.tenantID, userID), community); err != nil {
		return nil, err
	}
	return map[string]any{model.FieldCommunityID: id}, nil
}

// submitInvites 每个地址一封邀请邮件，任一失败则整步失败
func (s *WizardService) submitInvites(ctx context.Context, sess *wizardSession, data wizard.OnboardingData) (map[string]any, error) {
	invites := validation.AsStrings(data[model.FieldInviteEmails])
	if len(invites) == 0 {
		return nil, nil
	}

	subject, html, err := email.RenderInvite(email.InviteData{
		InviterName:   validation.AsString(data[model.FieldDisplayName]),
		CommunityName: validation.AsString(data[model.FieldCommunityName]),
		JoinURL:       s.opts.AppBaseURL + "/join/" + validation.AsString(data[model.FieldCommunityID]),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.EmailDeliveryFailed, err)
	}

	userID := validation.AsString(data[model.FieldUserID])
	seen := make(map[string]struct{}, len(invites))
	for _, to := range invites {
		to = strings.ToLower(to)
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}

		if err := s.deps.Mailer.Send(ctx, &model.EmailMessage{
			TenantID: sess.tenantID,
			UserID:   userID,
			Category: model.EmailCategoryInvite,
			To:       to,
			Subject:  subject,
			HTML:     html,
		}); err != nil {
			return nil, err
		}
	}

	logger.Logger.Info("Community invites sent",
		zap.String("tenant_id", sess.tenantID),
		zap.String("user_id", userID),
		zap.Int("count", len(seen)),
	)
	return nil, nil
}

// onComplete 激活用户并发送欢迎邮件，失败只记录日志
func (s *WizardService) onComplete(sess *wizardSession) func(wizard.OnboardingData) {
	return func(data wizard.OnboardingData) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		userID := validation.AsString(data[model.FieldUserID])
		user, err := s.deps.Identity.Activate(ctx, userID)
		if err != nil {
			logger.Logger.Error("Failed to activate user after onboarding",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}
		metrics.RecordWizardCompleted(ctx, sess.tenantID)

		subject, html, err := email.RenderWelcome(email.WelcomeData{
			DisplayName:   user.DisplayName,
			CommunityName: validation.AsString(data[model.FieldCommunityName]),
			AppURL:        s.opts.AppBaseURL,
		})
		if err == nil {
			err = s.deps.Mailer.Send(ctx, &model.EmailMessage{
				TenantID: sess.tenantID,
				UserID:   userID,
				Category: model.EmailCategoryWelcome,
				To:       user.Email,
				Subject:  subject,
				HTML:     html,
			})
		}
		if err != nil {
			logger.Logger.Warn("Failed to send welcome email", zap.String("user_id", userID), zap.Error(err))
			return
		}

		logger.Logger.Info("Onboarding completed",
			zap.String("tenant_id", sess.tenantID),
			zap.String("user_id", userID),
		)
	}
}
