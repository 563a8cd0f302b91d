package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Rule 校验单个字段，返回空字符串表示通过。all 为整份表单，供跨字段规则使用。
type Rule func(value any, all map[string]any) string

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail 宽松的邮箱格式检查：local@domain.tld，不含空白
func IsEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// AsString 将表单值转为字符串，nil 视为空
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "on", "1", "yes":
			return true
		}
	case float64:
		return x != 0
	}
	return false
}

// AsStrings 接受 []string、[]any 或以逗号/换行分隔的字符串，去掉空项
func AsStrings(v any) []string {
	var raw []string
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		raw = x
	case []any:
		for _, item := range x {
			raw = append(raw, AsString(item))
		}
	default:
		raw = strings.FieldsFunc(AsString(x), func(r rune) bool {
			return r == ',' || r == ';' || r == '\n' || r == '\r'
		})
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	default:
		return strings.TrimSpace(AsString(x)) == ""
	}
}

// Required 非空
func Required(message string) Rule {
	if message == "" {
		message = "This field is required"
	}
	return func(value any, _ map[string]any) string {
		if isEmpty(value) {
			return message
		}
		return ""
	}
}

// Email 必填且格式正确
func Email() Rule {
	return func(value any, _ map[string]any) string {
		s := strings.TrimSpace(AsString(value))
		if s == "" {
			return "Email is required"
		}
		if !IsEmail(s) {
			return "Enter a valid email address"
		}
		return ""
	}
}

// Password 必填且至少 min 个字符
func Password(min int) Rule {
	minLength := MinLength(min)
	return func(value any, all map[string]any) string {
		if AsString(value) == "" {
			return "Password is required"
		}
		if msg := minLength(value, all); msg != "" {
			return fmt.Sprintf("Password must be at least %d characters", min)
		}
		return ""
	}
}

// MinLength 按字符数计算；空值交给 Required 处理
func MinLength(n int) Rule {
	return func(value any, _ map[string]any) string {
		s := AsString(value)
		if s != "" && utf8.RuneCountInString(s) < n {
			return fmt.Sprintf("Must be at least %d characters", n)
		}
		return ""
	}
}

// MaxLength 按字符数计算
func MaxLength(n int) Rule {
	return func(value any, _ map[string]any) string {
		if utf8.RuneCountInString(AsString(value)) > n {
			return fmt.Sprintf("Must be at most %d characters", n)
		}
		return ""
	}
}

// MatchesField 与另一字段的值相同
func MatchesField(other, message string) Rule {
	if message == "" {
		message = "Values do not match"
	}
	return func(value any, all map[string]any) string {
		if AsString(value) != AsString(all[other]) {
			return message
		}
		return ""
	}
}

// Consent 勾选项必须为真
func Consent(message string) Rule {
	if message == "" {
		message = "You must accept to continue"
	}
	return func(value any, _ map[string]any) string {
		if !asBool(value) {
			return message
		}
		return ""
	}
}

// FileOrPrior 本次上传或已有的 prior 字段至少有一个
func FileOrPrior(prior, message string) Rule {
	if message == "" {
		message = "Please upload an image"
	}
	return func(value any, all map[string]any) string {
		if isEmpty(value) && isEmpty(all[prior]) {
			return message
		}
		return ""
	}
}

// OneOf 值必须在给定选项内
func OneOf(options ...string) Rule {
	return func(value any, _ map[string]any) string {
		s := AsString(value)
		for _, opt := range options {
			if s == opt {
				return ""
			}
		}
		return fmt.Sprintf("Choose one of: %s", strings.Join(options, ", "))
	}
}

// Digits 恰好 n 位数字
func Digits(n int) Rule {
	pattern := regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, n))
	return func(value any, _ map[string]any) string {
		if !pattern.MatchString(strings.TrimSpace(AsString(value))) {
			return fmt.Sprintf("Enter the %d-digit code", n)
		}
		return ""
	}
}

// EmailList 可为空；每项须为合法邮箱，总数不超过 max
func EmailList(max int) Rule {
	return func(value any, _ map[string]any) string {
		emails := AsStrings(value)
		if len(emails) > max {
			return fmt.Sprintf("You can invite up to %d people at a time", max)
		}
		for _, e := range emails {
			if !IsEmail(e) {
				return fmt.Sprintf("%q is not a valid email address", e)
			}
		}
		return ""
	}
}
