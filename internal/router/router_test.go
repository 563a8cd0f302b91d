package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"Kinship/internal/middleware"
	"Kinship/internal/repository"
	"Kinship/internal/service"
	"Kinship/pkg/blob"
	"Kinship/pkg/email"
	"Kinship/pkg/token"
)

type refreshStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *refreshStore) Save(ctx context.Context, tenantID, userID, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = make(map[string]string)
	}
	s.tokens[tenantID+":"+userID] = tok
	return nil
}

func (s *refreshStore) Matches(ctx context.Context, tenantID, userID, tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[tenantID+":"+userID] == tok
}

type testApp struct {
	t      *testing.T
	engine *route.Engine
	mail   *email.MockClient
	signer *token.Signer
	cookie string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	var seq int64 = 5000
	signer := &token.Signer{
		Secret:         []byte("router-test-secret"),
		AccessTimeout:  time.Hour,
		RefreshTimeout: 24 * time.Hour,
		Now:            time.Now,
	}

	users := repository.NewMemoryUserRepository()
	docs := repository.NewMemoryDocumentStore()
	mail := email.NewMockClient()
	notification := service.NewNotificationService(mail, nil, nil)

	identity := service.NewIdentityService(users, nil, service.IdentityOptions{
		PasswordMinLength: 8,
		BcryptCost:        bcrypt.MinCost,
		NextID:            func() (int64, error) { return atomic.AddInt64(&seq, 1), nil },
	})
	auth := service.NewAuthService(identity, signer, &refreshStore{})
	verification := service.NewVerificationService(docs, notification, nil, nil, nil, service.VerificationOptions{
		GenerateCode: func() (string, error) { return "123456", nil },
	})
	progress := service.NewOnboardingService(docs, nil)
	uploads := service.NewUploadService(blob.NewMemoryClient("https://cdn.test"), 1<<20, nil)
	wizardSvc := service.NewWizardService(service.WizardDeps{
		Identity:     identity,
		Verification: verification,
		Progress:     progress,
		Docs:         docs,
		Mailer:       notification,
		Tokens:       auth,
		Uploads:      uploads,
	}, service.WizardOptions{
		TransitionDelay: time.Millisecond,
		AppBaseURL:      "https://app.test",
	})
	t.Cleanup(wizardSvc.Close)

	service.Set(&service.Container{
		Users:        users,
		Docs:         docs,
		Identity:     identity,
		Auth:         auth,
		Verification: verification,
		Progress:     progress,
		Notification: notification,
		Uploads:      uploads,
		Wizard:       wizardSvc,
	})

	authMW, err := middleware.NewAuthMiddleware(signer)
	require.NoError(t, err)

	e := route.NewEngine(config.NewOptions(nil))
	Register(e, Options{
		Auth: authMW.MiddlewareFunc(),
		Session: middleware.WizardSessionMiddlewares(middleware.SessionConfig{
			SessionSecret: "router-session-secret-0123456789",
			CSRFSecret:    "router-csrf-secret",
			MaxAge:        3600,
		}),
		Tenant:       middleware.TenantMiddleware("default"),
		DisableLimit: true,
	})

	return &testApp{t: t, engine: e, mail: mail, signer: signer}
}

func (a *testApp) do(method, path, body string, headers ...ut.Header) *protocol.Response {
	a.t.Helper()
	var b *ut.Body
	if body != "" {
		b = &ut.Body{Body: bytes.NewBufferString(body), Len: len(body)}
		headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	}
	if a.cookie != "" {
		headers = append(headers, ut.Header{Key: "Cookie", Value: a.cookie})
	}
	resp := ut.PerformRequest(a.engine, method, path, b, headers...).Result()

	resp.Header.VisitAllCookie(func(key, value []byte) {
		if string(key) == middleware.SessionName {
			a.cookie, _, _ = strings.Cut(string(value), ";")
		}
	})
	return resp
}

func bearer(tok string) ut.Header {
	return ut.Header{Key: "Authorization", Value: "Bearer " + tok}
}

func data(t *testing.T, resp *protocol.Response, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &env), string(resp.Body()))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func errorCode(t *testing.T, resp *protocol.Response) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &env), string(resp.Body()))
	return env.Error.Code
}

type authBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID            string `json:"id"`
		TenantID      string `json:"tenant_id"`
		EmailVerified bool   `json:"email_verified"`
	} `json:"user"`
}

func (a *testApp) signUp(addr string) authBody {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/v1/auth/signup",
		`{"email":"`+addr+`","password":"correct horse","display_name":"Ada"}`,
		ut.Header{Key: middleware.TenantHeader, Value: "acme"},
	)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode(), string(resp.Body()))
	var out authBody
	data(a.t, resp, &out)
	return out
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	resp := app.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestAuthRoutes(t *testing.T) {
	app := newTestApp(t)
	tenant := ut.Header{Key: middleware.TenantHeader, Value: "acme"}

	created := app.signUp("ada@example.com")
	assert.Equal(t, "acme", created.User.TenantID)
	assert.NotEmpty(t, created.AccessToken)

	resp := app.do(http.MethodPost, "/v1/auth/signup", `{"email":"ada@example.com","password":"correct horse"}`, tenant)
	assert.Equal(t, http.StatusConflict, resp.StatusCode())
	assert.Equal(t, "AUTH_EMAIL_IN_USE", errorCode(t, resp))

	resp = app.do(http.MethodPost, "/v1/auth/signin", `{"email":"ada@example.com","password":"wrong password"}`, tenant)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.Equal(t, "AUTH_INVALID_CREDENTIALS", errorCode(t, resp))

	resp = app.do(http.MethodPost, "/v1/auth/signin", `{"email":"ada@example.com","password":"correct horse"}`, tenant)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	resp = app.do(http.MethodPost, "/v1/auth/signin", `{"email":"","password":""}`, tenant)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())

	resp = app.do(http.MethodPost, "/v1/auth/federated", `{"error":"popup_closed_by_user"}`, tenant)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())

	resp = app.do(http.MethodPost, "/v1/auth/federated", `{"error":"popup_blocked"}`, tenant)
	assert.Equal(t, "AUTH_POPUP_BLOCKED", errorCode(t, resp))

	var signedIn authBody
	resp = app.do(http.MethodPost, "/v1/auth/signin", `{"email":"ada@example.com","password":"correct horse"}`, tenant)
	data(t, resp, &signedIn)

	resp = app.do(http.MethodPost, "/v1/auth/token/refresh", `{"refresh_token":"`+signedIn.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))

	// 旧 token 已被轮换
	resp = app.do(http.MethodPost, "/v1/auth/token/refresh", `{"refresh_token":"`+signedIn.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestVerificationRoutes(t *testing.T) {
	app := newTestApp(t)
	user := app.signUp("grace@example.com")
	auth := bearer(user.AccessToken)

	resp := app.do(http.MethodPost, "/v1/auth/email/send-code", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

	resp = app.do(http.MethodPost, "/v1/auth/email/send-code", `{}`, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	calls := app.mail.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "grace@example.com", calls[0].To)
	assert.Contains(t, calls[0].HTML, "123456")

	resp = app.do(http.MethodPost, "/v1/auth/email/verify", `{"code":"654321"}`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, "VERIFICATION_CODE_INVALID", errorCode(t, resp))

	resp = app.do(http.MethodPost, "/v1/auth/email/verify", `{"code":" 123456 "}`, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))

	resp = app.do(http.MethodPost, "/v1/auth/email/verify", `{"code":"123456"}`, auth)
	assert.Equal(t, http.StatusConflict, resp.StatusCode())
	assert.Equal(t, "VERIFICATION_CODE_USED", errorCode(t, resp))

	var sent struct {
		EmailVerified bool `json:"email_verified"`
	}
	resp = app.do(http.MethodPost, "/v1/auth/email/send-code", `{}`, auth)
	data(t, resp, &sent)
	assert.True(t, sent.EmailVerified)
	assert.Len(t, app.mail.Calls(), 1, "no new email once verified")

	resp = app.do(http.MethodPost, "/v1/auth/email/verify-slider", `{"email":"grace@example.com","captcha_verify_param":"x"}`)
	assert.Equal(t, "VERIFICATION_SLIDER_FAILED", errorCode(t, resp))
}

func TestProgressRoutes(t *testing.T) {
	app := newTestApp(t)
	user := app.signUp("lin@example.com")
	auth := bearer(user.AccessToken)

	type progressBody struct {
		Progress *struct {
			CompletedSteps []string                   `json:"completed_steps"`
			StepData       map[string]json.RawMessage `json:"step_data"`
		} `json:"progress"`
		NextStep string `json:"next_step"`
		Complete bool   `json:"complete"`
	}

	var got progressBody
	resp := app.do(http.MethodGet, "/v1/onboarding/progress", "", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	data(t, resp, &got)
	assert.Nil(t, got.Progress)
	assert.Equal(t, "account", got.NextStep)
	assert.False(t, got.Complete)

	resp = app.do(http.MethodPut, "/v1/onboarding/progress/account",
		`{"data":{"email":"lin@example.com","password":"secret-pass","userId":"forged"},"completed":true}`, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	data(t, resp, &got)
	assert.Equal(t, []string{"account"}, got.Progress.CompletedSteps)
	assert.Equal(t, "verify_email", got.NextStep)
	saved := string(got.Progress.StepData["account"])
	assert.Contains(t, saved, "lin@example.com")
	assert.NotContains(t, saved, "secret-pass")
	assert.NotContains(t, saved, "forged")

	resp = app.do(http.MethodPut, "/v1/onboarding/progress/billing", `{"data":{}}`, auth)
	assert.Equal(t, "ONBOARDING_STEP_INVALID", errorCode(t, resp))

	resp = app.do(http.MethodGet, "/v1/onboarding/progress", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

type wizardBody struct {
	SessionID string `json:"session_id"`
	StepIndex int    `json:"step_index"`
	Valid     bool   `json:"valid"`
	Banner    *struct {
		Code string `json:"code"`
	} `json:"banner"`
	Tokens *token.Pair `json:"tokens"`
}

func TestWizardRoutes(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(http.MethodGet, "/v1/onboarding/wizard", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	csrfToken := string(resp.Header.Peek(middleware.CSRFHeader))
	require.NotEmpty(t, csrfToken)
	require.NotEmpty(t, app.cookie)
	csrfHeader := ut.Header{Key: middleware.CSRFHeader, Value: csrfToken}

	resp = app.do(http.MethodPost, "/v1/onboarding/wizard", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode(), "mutations need the csrf token")

	var view wizardBody
	resp = app.do(http.MethodPost, "/v1/onboarding/wizard", "", csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	data(t, resp, &view)
	sessionID := view.SessionID
	require.NotEmpty(t, sessionID)
	assert.Equal(t, 0, view.StepIndex)

	resp = app.do(http.MethodPatch, "/v1/onboarding/wizard/data", `{"userId":"1"}`, csrfHeader)
	assert.Equal(t, "WIZARD_FIELD_RESERVED", errorCode(t, resp))

	resp = app.do(http.MethodPatch, "/v1/onboarding/wizard/data",
		`{"email":"mo@example.com","password":"correct horse","confirmPassword":"correct horse","acceptTerms":true}`, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	data(t, resp, &view)
	assert.True(t, view.Valid)

	resp = app.do(http.MethodPost, "/v1/onboarding/wizard/next", "", csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	data(t, resp, &view)
	assert.Nil(t, view.Banner)
	require.NotNil(t, view.Tokens, "sign-up tokens are handed out once")

	assert.Eventually(t, func() bool {
		var cur wizardBody
		data(t, app.do(http.MethodGet, "/v1/onboarding/wizard", ""), &cur)
		return cur.StepIndex == 1 && cur.SessionID == sessionID
	}, time.Second, 5*time.Millisecond)

	calls := app.mail.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mo@example.com", calls[0].To)

	resp = app.do(http.MethodPatch, "/v1/onboarding/wizard/data", `{"verificationCode":"000000"}`, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	resp = app.do(http.MethodPost, "/v1/onboarding/wizard/next", "", csrfHeader)
	data(t, resp, &view)
	require.NotNil(t, view.Banner)
	assert.Equal(t, "VERIFICATION_CODE_INVALID", view.Banner.Code)
	assert.Equal(t, 1, view.StepIndex)

	// 已登录后可以按保存的进度恢复
	var resumed wizardBody
	resp = app.do(http.MethodPost, "/v1/onboarding/wizard/resume", "", csrfHeader, bearer(app.signIn("mo@example.com")))
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	data(t, resp, &resumed)
	assert.NotEqual(t, sessionID, resumed.SessionID)
	assert.Equal(t, 1, resumed.StepIndex, "account is done, email not yet verified")
}

func (a *testApp) signIn(addr string) string {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/v1/auth/signin", `{"email":"`+addr+`","password":"correct horse"}`)
	require.Equal(a.t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	var out authBody
	data(a.t, resp, &out)
	return out.AccessToken
}
