package dto

import "Kinship/internal/model"

// ========== Onboarding 相关 DTO ==========

// ProgressResponse 进度查询
type ProgressResponse struct {
	Progress *model.OnboardingProgress `json:"progress"`
	NextStep model.OnboardingStep      `json:"next_step,omitempty"`
	Complete bool                      `json:"complete"`
}

// SaveStepRequest 直接保存某一步的数据
type SaveStepRequest struct {
	Data      map[string]any `json:"data"`
	Completed bool           `json:"completed"`
}

// UploadResponse 向导外的单独上传
type UploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}
