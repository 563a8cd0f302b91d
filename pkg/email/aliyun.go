package email

import (
	"context"
	"encoding/json"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"Kinship/pkg/logger"
)

// AliyunClient 阿里云邮件推送（DirectMail）客户端
type AliyunClient struct {
	client      *openapi.Client
	accountName string
	fromAlias   string
}

// NewAliyunClient 创建 DirectMail 客户端
// 凭据通过环境变量 ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET 获取
func NewAliyunClient(endpoint, accountName, fromAlias string) (*AliyunClient, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun client: %w", err)
	}

	return &AliyunClient{
		client:      client,
		accountName: accountName,
		fromAlias:   fromAlias,
	}, nil
}

func (c *AliyunClient) createApiInfo(action string) *openapi.Params {
	return &openapi.Params{
		Action:      tea.String(action),
		Version:     tea.String("2015-11-23"),
		Protocol:    tea.String("HTTPS"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		Pathname:    tea.String("/"),
		ReqBodyType: tea.String("json"),
		BodyType:    tea.String("json"),
	}
}

// Send 调用 SingleSendMail
func (c *AliyunClient) Send(ctx context.Context, to, subject, html string) (*SendResult, error) {
	if c.accountName == "" {
		return nil, fmt.Errorf("email account name is not configured")
	}

	queries := map[string]interface{}{
		"AccountName":    tea.String(c.accountName),
		"AddressType":    tea.Int(1),
		"ReplyToAddress": tea.Bool(false),
		"ToAddress":      tea.String(to),
		"Subject":        tea.String(subject),
		"HtmlBody":       tea.String(html),
		"FromAlias":      tea.String(c.fromAlias),
	}

	request := &openapi.OpenApiRequest{
		Query: openapiutil.Query(queries),
	}

	resp, err := c.client.CallApi(c.createApiInfo("SingleSendMail"), request, &util.RuntimeOptions{})
	if err != nil {
		logger.Logger.Error("Failed to send email",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	if code, ok := resp["statusCode"].(int); ok && code != 200 {
		logger.Logger.Error("DirectMail API returned error",
			zap.Int("statusCode", code),
			zap.Any("body", resp["body"]),
		)
		return nil, fmt.Errorf("DirectMail API error: statusCode=%d", code)
	}

	result := &SendResult{Provider: "aliyun"}
	if resp["body"] != nil {
		bodyBytes, _ := json.Marshal(resp["body"])
		var body struct {
			EnvID     string `json:"EnvId"`
			RequestID string `json:"RequestId"`
			Code      string `json:"Code"`
			Message   string `json:"Message"`
		}
		if err := json.Unmarshal(bodyBytes, &body); err == nil {
			if body.Code != "" && body.EnvID == "" {
				return nil, fmt.Errorf("DirectMail send failed: %s - %s", body.Code, body.Message)
			}
			result.MessageID = body.EnvID
			result.RequestID = body.RequestID
		}
	}

	logger.Logger.Info("Email sent successfully",
		zap.String("subject", subject),
		zap.String("env_id", result.MessageID),
	)
	return result, nil
}
