package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"kinship"`
	AppBaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"` // 邮件中的链接前缀

	// 多租户，请求头 X-Tenant-ID 缺省时使用
	TenantDefault string `env:"TENANT_DEFAULT" envDefault:"default"`

	// PostgreSQL 配置
	PostgreSQLHost        string   `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort        string   `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser        string   `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword    string   `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase    string   `env:"POSTGRESQL_DATABASE" envDefault:"kinship"`
	PostgreSQLSchema      string   `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode     string   `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle     int      `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen     int      `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	PostgreSQLReplicaDSNs []string `env:"POSTGRESQL_REPLICA_DSNS" envSeparator:";"` // 只读副本，文档列表查询走副本

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"kin"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置
	JWTSecret        string `env:"JWT_SECRET"` // 必填，用于签名 JWT
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// 向导会话 cookie 与 CSRF
	SessionSecret string `env:"SESSION_SECRET"`
	CSRFSecret    string `env:"CSRF_SECRET"`

	// 第三方登录（OAuth2 / OIDC）
	OAuthClientID     string `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	OAuthAuthURL      string `env:"OAUTH_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	OAuthTokenURL     string `env:"OAUTH_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	OAuthUserInfoURL  string `env:"OAUTH_USERINFO_URL" envDefault:"https://openidconnect.googleapis.com/v1/userinfo"`
	OAuthRedirectURL  string `env:"OAUTH_REDIRECT_URL"`

	// 邮件服务配置
	// AccessKey 和 SecretKey 通过阿里云 SDK 的环境变量自动获取：
	// ALIBABA_CLOUD_ACCESS_KEY_ID 和 ALIBABA_CLOUD_ACCESS_KEY_SECRET
	EmailProvider     string `env:"EMAIL_PROVIDER" envDefault:"aliyun"` // aliyun, mock
	EmailEndpoint     string `env:"EMAIL_ENDPOINT" envDefault:"dm.aliyuncs.com"`
	EmailAccountName  string `env:"EMAIL_ACCOUNT_NAME"` // 发信地址，如 no-reply@mail.kinship.app
	EmailFromAlias    string `env:"EMAIL_FROM_ALIAS" envDefault:"Kinship"`
	EmailDeliveryMode string `env:"EMAIL_DELIVERY_MODE" envDefault:"sync"` // sync, queue

	// 对象存储
	BlobProvider    string `env:"BLOB_PROVIDER" envDefault:"s3"` // s3, memory
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Region        string `env:"S3_REGION" envDefault:"auto"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3Bucket        string `env:"S3_BUCKET" envDefault:"kinship-uploads"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
	UploadMaxBytes  int64  `env:"UPLOAD_MAX_BYTES" envDefault:"5242880"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数

	// 向导配置
	WizardTransitionMS       int `env:"WIZARD_TRANSITION_MS" envDefault:"350"`
	WizardSessionIdleMinutes int `env:"WIZARD_SESSION_IDLE_MINUTES" envDefault:"60"`
	PasswordMinLength        int `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	MaxInvites               int `env:"MAX_INVITES" envDefault:"20"`
	ReminderAfterHours       int `env:"REMINDER_AFTER_HOURS" envDefault:"24"`

	// 邮箱验证码配置
	VerificationCodeTTLMinutes  int    `env:"VERIFICATION_CODE_TTL_MINUTES" envDefault:"15"`
	VerificationMaxDaily        int    `env:"VERIFICATION_MAX_DAILY" envDefault:"10"`
	VerificationSliderThreshold int    `env:"VERIFICATION_SLIDER_THRESHOLD" envDefault:"3"` // 超过此次数需要滑块验证
	CaptchaProvider             string `env:"CAPTCHA_PROVIDER" envDefault:"aliyun"`         // 滑块验证提供商：aliyun, none
	CaptchaSceneID              string `env:"CAPTCHA_SCENE_ID"`
	EmailHashSalt               string `env:"EMAILHASH_SALT"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
}

// MustValidate 在进程入口调用；包被测试引用时不做强校验
func MustValidate() {
	if Cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	if Cfg.SessionSecret == "" || Cfg.CSRFSecret == "" {
		log.Fatal("SESSION_SECRET and CSRF_SECRET are required for the onboarding wizard")
	}

	if Cfg.PasswordMinLength < 6 {
		log.Fatal("PASSWORD_MIN_LENGTH must be at least 6")
	}

	if Cfg.EmailAccountName == "" && Cfg.EmailProvider == "aliyun" {
		log.Printf("WARN: EMAIL_ACCOUNT_NAME is not set, email delivery will not work")
	}

	if Cfg.CaptchaSceneID == "" && Cfg.CaptchaProvider == "aliyun" {
		log.Printf("WARN: CAPTCHA_SCENE_ID is not set, slider verification will always fail")
	}

	if Cfg.BlobProvider == "s3" && (Cfg.S3Endpoint == "" || Cfg.S3AccessKey == "") {
		log.Printf("WARN: S3_ENDPOINT / S3_ACCESS_KEY not set, uploads will fail")
	}

	if Cfg.OAuthClientID == "" {
		log.Printf("WARN: OAUTH_CLIENT_ID is not set, federated sign-in is disabled")
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) QueueDelivery() bool {
	return strings.EqualFold(c.EmailDeliveryMode, "queue")
}
