package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// VerificationData 验证码邮件参数
type VerificationData struct {
	Code       string
	TTLMinutes int
}

// InviteData 邀请邮件参数
type InviteData struct {
	InviterName   string
	CommunityName string
	JoinURL       string
}

// WelcomeData 完成引导后的欢迎邮件参数
type WelcomeData struct {
	DisplayName   string
	CommunityName string
	AppURL        string
}

// ReminderData 引导未完成的提醒邮件参数
type ReminderData struct {
	DisplayName string
	NextStep    string
	ResumeURL   string
}

const layout = `<!doctype html><html><body style="font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;color:#1f2933;max-width:560px;margin:0 auto;padding:24px">{{template "content" .}}<p style="color:#7b8794;font-size:12px;margin-top:32px">Kinship</p></body></html>`

var templates = map[string]*template.Template{
	"verification": parse(`{{define "content"}}<h2>Confirm your email</h2><p>Your verification code is</p><p style="font-size:28px;letter-spacing:6px;font-weight:600">{{.Code}}</p><p>The code expires in {{.TTLMinutes}} minutes. If you did not sign up, you can ignore this email.</p>{{end}}`),
	"invite":       parse(`{{define "content"}}<h2>You're invited</h2><p>{{.InviterName}} invited you to join <strong>{{.CommunityName}}</strong>.</p><p><a href="{{.JoinURL}}">Join the community</a></p>{{end}}`),
	"welcome":      parse(`{{define "content"}}<h2>Welcome, {{.DisplayName}}!</h2>{{if .CommunityName}}<p><strong>{{.CommunityName}}</strong> is ready.</p>{{end}}<p><a href="{{.AppURL}}">Open Kinship</a></p>{{end}}`),
	"reminder":     parse(`{{define "content"}}<h2>{{if .DisplayName}}Hi {{.DisplayName}}, y{{else}}Y{{end}}ou're almost there</h2><p>Your setup stopped at <strong>{{.NextStep}}</strong>.</p><p><a href="{{.ResumeURL}}">Pick up where you left off</a></p>{{end}}`),
}

func parse(content string) *template.Template {
	return template.Must(template.Must(template.New("layout").Parse(layout)).Parse(content))
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}

// RenderVerification 返回主题与正文
func RenderVerification(data VerificationData) (string, string, error) {
	html, err := render("verification", data)
	return fmt.Sprintf("Your Kinship verification code: %s", data.Code), html, err
}

func RenderInvite(data InviteData) (string, string, error) {
	html, err := render("invite", data)
	return fmt.Sprintf("%s invited you to %s", data.InviterName, data.CommunityName), html, err
}

func RenderWelcome(data WelcomeData) (string, string, error) {
	html, err := render("welcome", data)
	return "Welcome to Kinship", html, err
}

func RenderReminder(data ReminderData) (string, string, error) {
	html, err := render("reminder", data)
	return "Finish setting up your Kinship community", html, err
}
