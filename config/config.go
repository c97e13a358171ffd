/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT       = "5005"
	DEFAULT_DATASOURCE = "sqlite://autopost.db"
	DEFAULT_MODEL      = "gpt-4o-mini"
	DEFAULT_MAX_LENGTH = 280
	DEFAULT_INTERVAL   = 60
)

var ConfigStore atomic.Value

var DefaultTemplates = []string{
	"今天的灵感来自这张图：{filename}",
	"AI 小编上线，分享 {filename} 的精彩瞬间！",
}

const (
	DefaultPrompt       = "请为一张社交媒体照片撰写不超过 100 字的中文推文文案，\n语气要友好、积极，并可适度使用 emoji。"
	DefaultSystemPrompt = "你是一位专门撰写社交媒体推文的中文创意助理。"
)

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"AUTOPOST_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"AUTOPOST_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"AUTOPOST_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"AUTOPOST_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"AUTOPOST_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"AUTOPOST_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"AUTOPOST_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"AUTOPOST_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"AUTOPOST_REDIS_SKIP_TLS_VERIFY"`
}

type S3Config struct {
	Bucket          string `json:"bucket" envconfig:"AUTOPOST_S3_BUCKET"`
	Prefix          string `json:"prefix" envconfig:"AUTOPOST_S3_PREFIX"`
	Region          string `json:"region" envconfig:"AUTOPOST_S3_REGION"`
	Endpoint        string `json:"endpoint" envconfig:"AUTOPOST_S3_ENDPOINT"`
	AccessKeyID     string `json:"access_key_id" envconfig:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"AWS_SECRET_ACCESS_KEY"`
}

type CaptionConfig struct {
	Model            string   `json:"model" envconfig:"AUTOPOST_CAPTION_MODEL"`
	Prompt           string   `json:"prompt"`
	SystemPrompt     string   `json:"system_prompt"`
	Templates        []string `json:"templates"`
	MaxLength        int      `json:"max_length"`
	Temperature      float64  `json:"temperature"`
	MaxTokens        int64    `json:"max_tokens"`
	TimeoutSeconds   int      `json:"timeout_seconds"`
	FailureThreshold uint     `json:"failure_threshold"`
	CooldownSeconds  int      `json:"cooldown_seconds"`
}

type TweetConfig struct {
	Prefix         string `json:"prefix"`
	Suffix         string `json:"suffix"`
	MaxLength      int    `json:"max_length"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type SchedulerConfig struct {
	IntervalMinutes int    `json:"interval_minutes" envconfig:"AUTOPOST_INTERVAL_MINUTES"`
	Cron            string `json:"cron" envconfig:"AUTOPOST_CRON"`
	Timezone        string `json:"timezone" envconfig:"AUTOPOST_TIMEZONE"`
	InitialRun      *bool  `json:"initial_run"`
	MonitoringPort  string `json:"monitoring_port" envconfig:"AUTOPOST_MONITORING_PORT"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" envconfig:"OPENAI_API_KEY"`
	BaseURL string `json:"base_url" envconfig:"OPENAI_BASE_URL"`
}

type TwitterConfig struct {
	APIKey            string `json:"api_key" envconfig:"TWITTER_API_KEY"`
	APISecret         string `json:"api_secret" envconfig:"TWITTER_API_SECRET"`
	AccessToken       string `json:"access_token" envconfig:"TWITTER_ACCESS_TOKEN"`
	AccessTokenSecret string `json:"access_token_secret" envconfig:"TWITTER_ACCESS_TOKEN_SECRET"`
	BearerToken       string `json:"bearer_token" envconfig:"TWITTER_BEARER_TOKEN"`
	APIBaseURL        string `json:"api_base_url" envconfig:"TWITTER_API_BASE_URL"`
	UploadBaseURL     string `json:"upload_base_url" envconfig:"TWITTER_UPLOAD_BASE_URL"`
}

// Configured reports whether all four OAuth1 values needed to post are present.
func (t TwitterConfig) Configured() bool {
	return t.APIKey != "" && t.APISecret != "" && t.AccessToken != "" && t.AccessTokenSecret != ""
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"AUTOPOST_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"AUTOPOST_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"AUTOPOST_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"AUTOPOST_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"AUTOPOST_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName      string           `json:"project_name" envconfig:"AUTOPOST_PROJECT_NAME"`
	ImageDirectory   string           `json:"image_directory" envconfig:"AUTOPOST_IMAGE_DIRECTORY"`
	DryRun           bool             `json:"dry_run" envconfig:"AUTOPOST_DRY_RUN"`
	MaxPostsPerCycle int              `json:"max_posts_per_cycle" envconfig:"AUTOPOST_MAX_POSTS_PER_CYCLE"`
	LogLevel         string           `json:"log_level" envconfig:"AUTOPOST_LOG_LEVEL"`
	EnableTelemetry  bool             `json:"enable_telemetry" envconfig:"AUTOPOST_ENABLE_TELEMETRY"`
	Caption          CaptionConfig    `json:"caption"`
	Tweet            TweetConfig      `json:"tweet"`
	Scheduler        SchedulerConfig  `json:"scheduler"`
	OpenAI           OpenAIConfig     `json:"openai"`
	Twitter          TwitterConfig    `json:"twitter"`
	S3               S3Config         `json:"s3"`
	Server           ServerConfig     `json:"server"`
	DataSource       DataSourceConfig `json:"data_source"`
	Redis            RedisConfig      `json:"redis"`
	Notification     Notification     `json:"notification"`
	RateLimit        RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return &ConfigurationError{Field: "file", Err: err}
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return &ConfigurationError{Field: "file", Err: fmt.Errorf("decode %s: %w", file, err)}
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	loadDotEnv(".env")

	// override config from environment variables
	err = envconfig.Process("autopost", &cnf)
	if err != nil {
		return &ConfigurationError{Field: "env", Err: err}
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

// loadDotEnv reads a .env file without overriding variables already set in the process.
func loadDotEnv(file string) {
	if _, err := os.Stat(file); err != nil {
		return
	}
	if err := godotenv.Load(file); err != nil {
		logrus.WithError(err).Warnf("failed to load %s", file)
		return
	}
	logrus.Debugf("loaded env file %s", file)
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded. Create a json file called autopost.json or set AUTOPOST_* env variables")
	}
	return c, nil
}

// Normalize fills defaults and validates a Configuration built in code rather than loaded.
func (cnf *Configuration) Normalize() error {
	return cnf.validateAndAddDefaults()
}

func (cnf *Configuration) validateAndAddDefaults() error {
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Autopost"
	}

	cnf.ImageDirectory = strings.TrimSpace(cnf.ImageDirectory)
	if cnf.ImageDirectory == "" {
		cnf.ImageDirectory = "images"
	}

	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	if cnf.DataSource.Dns == "" {
		log.Printf("Warning: data source not specified. Using %s", DEFAULT_DATASOURCE)
		cnf.DataSource.Dns = DEFAULT_DATASOURCE
	}
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.MaxPostsPerCycle == 0 {
		cnf.MaxPostsPerCycle = 1
	}
	if cnf.LogLevel == "" {
		cnf.LogLevel = "info"
	}

	cnf.Caption.applyDefaults()
	cnf.Tweet.applyDefaults()
	cnf.Scheduler.applyDefaults()

	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
	}

	cnf.scrubSecrets()

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return cnf.Validate()
}

func (c *CaptionConfig) applyDefaults() {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DEFAULT_MODEL
	}
	if strings.TrimSpace(c.Prompt) == "" {
		c.Prompt = DefaultPrompt
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	templates := make([]string, 0, len(c.Templates))
	for _, t := range c.Templates {
		if strings.TrimSpace(t) != "" {
			templates = append(templates, t)
		}
	}
	if len(templates) == 0 {
		templates = append(templates, DefaultTemplates...)
	}
	c.Templates = templates
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 200
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.CooldownSeconds == 0 {
		c.CooldownSeconds = 600
	}
}

func (t *TweetConfig) applyDefaults() {
	if t.MaxLength == 0 {
		t.MaxLength = DEFAULT_MAX_LENGTH
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = 60
	}
}

func (s *SchedulerConfig) applyDefaults() {
	if s.IntervalMinutes == 0 && s.Cron == "" {
		s.IntervalMinutes = DEFAULT_INTERVAL
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if s.InitialRun == nil {
		initial := true
		s.InitialRun = &initial
	}
	if s.MonitoringPort == "" {
		s.MonitoringPort = "5006"
	}
}

// RunsInitially reports whether a cycle should fire as soon as the scheduler starts.
func (s SchedulerConfig) RunsInitially() bool {
	return s.InitialRun == nil || *s.InitialRun
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
