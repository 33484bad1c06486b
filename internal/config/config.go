// Package config loads runtime settings from environment variables and an
// optional JSON settings file using Viper. Env vars override the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-phone-2fa/internal/pkg/validate"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration. It is built once in main and passed
// explicitly to every component that needs it.
type Config struct {
	AppPort        string   `mapstructure:"app_port" validate:"required"`
	AppEnv         string   `mapstructure:"app_env"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// StoreDriver selects the verification store: "sqlite" (default) or "dynamodb".
	StoreDriver  string         `mapstructure:"store_driver" validate:"oneof=sqlite dynamodb"`
	DatabasePath string         `mapstructure:"database_path"`
	Database     DatabaseTables `mapstructure:"database"`

	AWSRegion      string `mapstructure:"aws_region"`
	AWSEndpointURL string `mapstructure:"aws_endpoint_url"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `mapstructure:"aws_access_key_id"`
	AWSSecretKey   string `mapstructure:"aws_secret_access_key"`
	SNSRegion      string `mapstructure:"sns_region"`

	// SMSProvider selects who delivers OTP messages: "gateway" (default) or "sns".
	SMSProvider string  `mapstructure:"sms_provider" validate:"oneof=gateway sns"`
	Gateway     Gateway `mapstructure:"gateway"`
	OTP         OTP     `mapstructure:"otp"`
	Call        Call    `mapstructure:"call"`

	// WebhookSigningKey signs the token embedded in dynamic webhook URLs.
	// When empty, inbound hooks are accepted without a token.
	WebhookSigningKey string `mapstructure:"webhook_signing_key"`
}

// DatabaseTables holds the table name for each record kind. Names are
// spliced into SQL, so they must be bare identifiers.
type DatabaseTables struct {
	SMSOTP           string `mapstructure:"smsotptablename" validate:"required,sqlident"`
	CallVerification string `mapstructure:"callverificationtablename" validate:"required,sqlident"`
}

// Gateway holds the SMS/voice cloud API credentials.
type Gateway struct {
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gt=0"`
}

// Timeout bounds every round trip to the gateway.
func (g Gateway) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// OTP describes how one-time codes are generated and how long they live.
type OTP struct {
	Characters      string `mapstructure:"characters"`
	Length          int    `mapstructure:"length" validate:"gt=0"`
	ValidityPeriod  int    `mapstructure:"validityperiod" validate:"gt=0"` // seconds
	MessageTemplate string `mapstructure:"messagetemplate" validate:"required"`
}

// Validity returns ValidityPeriod as a duration.
func (o OTP) Validity() time.Duration {
	return time.Duration(o.ValidityPeriod) * time.Second
}

// Call configures missed-call verification.
type Call struct {
	WaitTimeSeconds int    `mapstructure:"wait_time_seconds" validate:"gt=0"`
	WebhookBaseURL  string `mapstructure:"webhook_base_url" validate:"omitempty,url"`
	WebhookPath     string `mapstructure:"webhook_path" validate:"required,startswith=/"`
	// HostedNumbers restricts which receiving numbers a hook may report.
	// Empty accepts any receiver.
	HostedNumbers []string `mapstructure:"hosted_numbers"`
}

// WaitTime is how long the gateway watches for the user's call.
func (c Call) WaitTime() time.Duration {
	return time.Duration(c.WaitTimeSeconds) * time.Second
}

// envBindings maps settings keys (as they appear in the JSON settings file)
// to the environment variables that override them.
var envBindings = map[string]string{
	"app_port":                           "APP_PORT",
	"app_env":                            "APP_ENV",
	"allowed_origins":                    "ALLOWED_ORIGINS",
	"store_driver":                       "STORE_DRIVER",
	"database_path":                      "DATABASE_PATH",
	"database.smsOtpTableName":           "DATABASE_SMS_OTP_TABLE",
	"database.callVerificationTableName": "DATABASE_CALL_VERIFICATION_TABLE",
	"aws_region":                         "AWS_REGION",
	"aws_endpoint_url":                   "AWS_ENDPOINT_URL",
	"aws_access_key_id":                  "AWS_ACCESS_KEY_ID",
	"aws_secret_access_key":              "AWS_SECRET_ACCESS_KEY",
	"sns_region":                         "SNS_REGION",
	"sms_provider":                       "SMS_PROVIDER",
	"gateway.base_url":                   "GATEWAY_BASE_URL",
	"gateway.api_key":                    "GATEWAY_API_KEY",
	"gateway.timeout_seconds":            "GATEWAY_TIMEOUT_SECONDS",
	"otp.characters":                     "OTP_CHARACTERS",
	"otp.length":                         "OTP_LENGTH",
	"otp.validityPeriod":                 "OTP_VALIDITY_PERIOD",
	"otp.messageTemplate":                "OTP_MESSAGE_TEMPLATE",
	"call.wait_time_seconds":             "CALL_WAIT_TIME_SECONDS",
	"call.webhook_base_url":              "CALL_WEBHOOK_BASE_URL",
	"call.webhook_path":                  "CALL_WEBHOOK_PATH",
	"call.hosted_numbers":                "CALL_HOSTED_NUMBERS",
	"webhook_signing_key":                "WEBHOOK_SIGNING_KEY",
}

// Load reads the optional settings file (SETTINGS_FILE, JSON) and then the
// environment, applies defaults and validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("app_port", "3000")
	v.SetDefault("app_env", "development")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("store_driver", "sqlite")
	v.SetDefault("database_path", "./storage/verifications.db")
	v.SetDefault("database.smsOtpTableName", "otp_requests")
	v.SetDefault("database.callVerificationTableName", "call_waitlists")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("sns_region", "us-east-1")
	v.SetDefault("sms_provider", "gateway")
	v.SetDefault("gateway.base_url", "https://api.cecula.com")
	v.SetDefault("gateway.timeout_seconds", 15)
	v.SetDefault("otp.characters", "digits")
	v.SetDefault("otp.length", 6)
	v.SetDefault("otp.validityPeriod", 300)
	v.SetDefault("otp.messageTemplate", "Your code is {code}")
	v.SetDefault("call.wait_time_seconds", 30)
	v.SetDefault("call.webhook_path", "/v1/calls/hook")

	_ = v.BindEnv("settings_file", "SETTINGS_FILE")
	if path := v.GetString("settings_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read settings file %s: %w", path, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.AllowedOrigins = splitList(v.GetString("allowed_origins"), cfg.AllowedOrigins)
	cfg.Call.HostedNumbers = splitList(v.GetString("call.hosted_numbers"), cfg.Call.HostedNumbers)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// splitList accepts either a comma-separated env value or a list that came
// from the settings file.
func splitList(raw string, fromFile []string) []string {
	if raw == "" {
		return fromFile
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
