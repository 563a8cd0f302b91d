package validation

// FieldRules 一个字段的规则列表，按顺序执行，第一条失败即停止
type FieldRules struct {
	Field string
	Rules []Rule
}

// Schema 一个步骤的字段规则，顺序即错误展示顺序
type Schema []FieldRules

// Field 构造 FieldRules
func Field(name string, rules ...Rule) FieldRules {
	return FieldRules{Field: name, Rules: rules}
}

// Fields 返回 schema 中的字段名
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for _, f := range s {
		names = append(names, f.Field)
	}
	return names
}

// Validate 返回 field → message，全部通过时为空 map
func (s Schema) Validate(fields map[string]any) map[string]string {
	errs := make(map[string]string)
	for _, f := range s {
		value := fields[f.Field]
		for _, rule := range f.Rules {
			if msg := rule(value, fields); msg != "" {
				errs[f.Field] = msg
				break
			}
		}
	}
	return errs
}

// Valid 所有字段均通过
func (s Schema) Valid(fields map[string]any) bool {
	return len(s.Validate(fields)) == 0
}

// Visible 只返回已填写过的字段的错误；eager 为真时（如提交被拒后）返回全部。
func (s Schema) Visible(fields map[string]any, eager bool) map[string]string {
	errs := s.Validate(fields)
	if eager {
		return errs
	}
	for field := range errs {
		if _, touched := fields[field]; !touched {
			delete(errs, field)
		}
	}
	return errs
}

// Pick 只保留 schema 中的字段，并去掉 exclude
func (s Schema) Pick(fields map[string]any, exclude ...string) map[string]any {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	out := make(map[string]any, len(s))
	for _, f := range s {
		if _, ok := skip[f.Field]; ok {
			continue
		}
		if v, ok := fields[f.Field]; ok {
			out[f.Field] = v
		}
	}
	return out
}
