package validation

import "Kinship/internal/model"

// Options 可配置的校验参数
type Options struct {
	PasswordMinLength int
	MaxInvites        int
}

func DefaultOptions() Options {
	return Options{PasswordMinLength: 8, MaxInvites: 20}
}

const (
	bioMaxLength         = 280
	descriptionMaxLength = 500
	nameMaxLength        = 64
)

// StepSchemas 各引导步骤的校验表
func StepSchemas(opts Options) map[model.OnboardingStep]Schema {
	if opts.PasswordMinLength <= 0 {
		opts.PasswordMinLength = DefaultOptions().PasswordMinLength
	}
	if opts.MaxInvites <= 0 {
		opts.MaxInvites = DefaultOptions().MaxInvites
	}

	return map[model.OnboardingStep]Schema{
		model.StepAccount: {
			Field(model.FieldEmail, Email()),
			Field(model.FieldPassword, Password(opts.PasswordMinLength)),
			Field(model.FieldConfirmPassword,
				Required("Please confirm your password"),
				MatchesField(model.FieldPassword, "Passwords do not match"),
			),
			Field(model.FieldAcceptTerms, Consent("You must accept the terms to continue")),
		},
		model.StepVerifyEmail: {
			Field(model.FieldVerificationCode, Digits(6)),
		},
		model.StepProfile: {
			Field(model.FieldDisplayName, Required("Display name is required"), MaxLength(nameMaxLength)),
			Field(model.FieldBio, MaxLength(bioMaxLength)),
			Field(model.FieldAvatar, FileOrPrior(model.FieldAvatarURL, "Please upload a profile picture")),
		},
		model.StepCommunity: {
			Field(model.FieldCommunityName, Required("Community name is required"), MaxLength(nameMaxLength)),
			Field(model.FieldCommunityDescription, MaxLength(descriptionMaxLength)),
			Field(model.FieldCommunityPrivacy,
				OneOf(model.CommunityPublic, model.CommunityPrivate, model.CommunityInviteOnly),
			),
			Field(model.FieldCommunityImage),
		},
		model.StepInviteMembers: {
			Field(model.FieldInviteEmails, EmailList(opts.MaxInvites)),
		},
	}
}
