package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type GatewayConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// PublicBaseURL is the externally reachable root of this service. It is
	// used to build media URLs for voice notes and must match the exact URL
	// configured at each provider for signature verification.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" required:"true"`

	TempDir string `envconfig:"TEMP_DIR" default:"/tmp/chatgw"`
	DataDir string `envconfig:"DATA_DIR" default:"/var/lib/chatgw/conversations"`

	CharLimit     int `envconfig:"CHAR_LIMIT" default:"1600"`
	ContextWindow int `envconfig:"CONTEXT_WINDOW" default:"20"`
	WeeklyCap     int `envconfig:"BASIC_WEEKLY_CAP" default:"10"`

	// SplitStrategy selects how long answers are cut to CharLimit:
	// "bisect" (default) or the legacy "sentence" splitter.
	SplitStrategy string `envconfig:"SPLIT_STRATEGY" default:"bisect"`

	// OpenAI
	OpenAIKey string        `envconfig:"OPENAI_API_KEY" required:"true"`
	ChatModel string        `envconfig:"CHAT_MODEL" default:"gpt-3.5-turbo-1106"`
	AITimeout time.Duration `envconfig:"AI_TIMEOUT" default:"13500ms"`

	// Meta Cloud API
	MetaToken         string  `envconfig:"META_ACCESS_TOKEN" required:"true"`
	MetaPhoneNumberID string  `envconfig:"META_PHONE_NUMBER_ID" required:"true"`
	MetaVerifyToken   string  `envconfig:"META_VERIFY_TOKEN" required:"true"`
	MetaRPS           float64 `envconfig:"META_RPS" default:"10"`
	MetaBurst         int     `envconfig:"META_BURST" default:"20"`

	// Twilio
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioFromNumber string `envconfig:"TWILIO_FROM_NUMBER" required:"true"`
	TwilioBaseURL    string `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`

	// Vonage
	VonageAPIKey     string `envconfig:"VONAGE_API_KEY" required:"true"`
	VonageAPISecret  string `envconfig:"VONAGE_API_SECRET" required:"true"`
	VonageFromNumber string `envconfig:"VONAGE_FROM_NUMBER" required:"true"`
	VonageBaseURL    string `envconfig:"VONAGE_BASE_URL" default:"https://api.nexmo.com"`

	// AWS / SQS. Leave the queue URL empty to disable the delivery-status
	// pipeline.
	AWSRegion      string `envconfig:"AWS_REGION"`
	StatusQueueURL string `envconfig:"STATUS_QUEUE_URL"`
}

type WorkerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	AWSRegion      string `envconfig:"AWS_REGION" required:"true"`
	StatusQueueURL string `envconfig:"STATUS_QUEUE_URL" required:"true"`
	SQSWaitTime    int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs     int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout  int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"20"`
}

func LoadGateway() GatewayConfig {
	var cfg GatewayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
