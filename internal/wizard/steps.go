package wizard

// StepDefinition 描述向导中的一个步骤，由展示层渲染，控制器只关心顺序与 Key。
type StepDefinition struct {
	Key              string `json:"key"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle,omitempty"`
	Description      string `json:"description,omitempty"`
	Media            string `json:"media,omitempty"`
	InputComponentID string `json:"input_component_id"`
}

// OnboardingData 是跨步骤累积的表单字段，新值按字段覆盖旧值。
type OnboardingData map[string]any

// Clone 浅拷贝一份，交给回调时避免与控制器内部状态共享 map。
func (d OnboardingData) Clone() OnboardingData {
	out := make(OnboardingData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge 将 partial 中的字段覆盖写入 d。
func (d OnboardingData) Merge(partial map[string]any) {
	for k, v := range partial {
		d[k] = v
	}
}

// Without 返回去掉指定字段后的副本。
func (d OnboardingData) Without(keys ...string) OnboardingData {
	out := d.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
