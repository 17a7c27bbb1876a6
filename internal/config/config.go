package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

const (
	defaultUpstreamBaseURL = "http://localhost:5000/api"
	defaultAllowedOrigin   = "http://localhost:3000"
	defaultSystemPrompt    = "You are a helpful assistant."
	defaultIdentifyRate    = 10
	defaultSessionIdle     = 30 * time.Minute
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	AI       AIConfig
	Identify IdentifyConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	identify, err := loadIdentifyConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Upstream: upstream, AI: ai, Identify: identify}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	AllowedOrigin string
	// SessionIdleTimeout 为 0 时不回收空闲会话。
	SessionIdleTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址与会话回收时间。
func loadServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{
		AllowedOrigin:      getEnvOrDefault("CORS_ALLOWED_ORIGIN", defaultAllowedOrigin),
		SessionIdleTimeout: defaultSessionIdle,
	}

	idle, err := parseOptionalDurationEnv("SESSION_IDLE_TIMEOUT")
	if err != nil {
		return ServerConfig{}, err
	}
	if idle != nil {
		cfg.SessionIdleTimeout = *idle
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// UpstreamConfig 描述 Ocean Monitor 后端地址。
type UpstreamConfig struct {
	BaseURL string
	// Timeout 为 0 时不设超时，仅依赖请求上下文取消。
	Timeout time.Duration
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	base := strings.TrimRight(getEnvOrDefault("UPSTREAM_BASE_URL", defaultUpstreamBaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_BASE_URL value: %q", base)
	}

	timeout, err := parseOptionalDurationEnv("UPSTREAM_TIMEOUT")
	if err != nil {
		return UpstreamConfig{}, err
	}

	cfg := UpstreamConfig{BaseURL: base}
	if timeout != nil {
		cfg.Timeout = *timeout
	}
	return cfg, nil
}

// AIConfig 描述对话大模型相关配置。凭证只保存在服务端。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	MaxTokens    *int
	SystemPrompt string
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		SystemPrompt: getEnvOrDefault("CHAT_SYSTEM_PROMPT", defaultSystemPrompt),
	}, nil
}

// IdentifyConfig 控制图像识别上传的频率。
type IdentifyConfig struct {
	RatePerMinute int
}

func loadIdentifyConfig() (IdentifyConfig, error) {
	perMinute, err := parseOptionalIntEnv("IDENTIFY_RATE_PER_MINUTE")
	if err != nil {
		return IdentifyConfig{}, err
	}

	rate := defaultIdentifyRate
	if perMinute != nil {
		if *perMinute < 1 {
			return IdentifyConfig{}, fmt.Errorf("invalid IDENTIFY_RATE_PER_MINUTE value %d: must be positive", *perMinute)
		}
		rate = *perMinute
	}
	return IdentifyConfig{RatePerMinute: rate}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return &val, nil
}
