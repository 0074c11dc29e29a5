package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"

	speechModel "github.com/zhouzirui/enrique/backend/internal/model/speech"
)

// Supported calendar backends.
const (
	BackendPlaywrightMCP = "playwright_mcp"
	BackendOfficeHours   = "office_hours"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Speech     SpeechConfig
	Scheduling SchedulingConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Debug      bool
}

// Load 从环境变量（以及可选的 config.yaml）加载配置。
func Load() (*Config, error) {
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*Config, error) {
	debug, err := parseBoolEnv(v, "DEBUG", false)
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig(v)
	if err != nil {
		return nil, err
	}

	scheduling, err := loadSchedulingConfig(v)
	if err != nil {
		return nil, err
	}

	redis, err := loadRedisConfig(v)
	if err != nil {
		return nil, err
	}

	httpCfg, err := loadHTTPConfig(v)
	if err != nil {
		return nil, err
	}

	logCfg := LogConfig{
		Level:  strings.ToLower(getEnvOrDefault(v, "LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault(v, "LOG_FORMAT", "console")),
	}
	if debug {
		logCfg.Level = "debug"
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Speech:     speech,
		Scheduling: scheduling,
		Redis:      redis,
		Log:        logCfg,
		HTTP:       httpCfg,
		Debug:      debug,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := getEnvOrDefault(v, "PORT", "8080")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
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
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv(v, "ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv(v, "ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv(v, "ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv(v, "ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         getEnvOrDefault(v, "ARK_API_KEY", ""),
		AccessKey:      getEnvOrDefault(v, "ARK_ACCESS_KEY", ""),
		SecretKey:      getEnvOrDefault(v, "ARK_SECRET_KEY", ""),
		Model:          getEnvOrDefault(v, "ARK_MODEL", getEnvOrDefault(v, "MODEL", "")),
		BaseURL:        getEnvOrDefault(v, "ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault(v, "ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// SpeechConfig 描述 OpenAI 语音服务相关配置
type SpeechConfig struct {
	APIKey      string
	BaseURL     string
	STTModel    string
	ASRLanguage string
	TTSModel    string
	TTSVoice    string
	TTSSpeed    float64
	TTSFormat   string
	MaxRetries  int
	Timeout     int
	Enabled     bool
}

// ToModel 转换为语音服务使用的配置结构。
func (c SpeechConfig) ToModel() *speechModel.SpeechConfig {
	return &speechModel.SpeechConfig{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		STTModel:    c.STTModel,
		ASRLanguage: c.ASRLanguage,
		TTSModel:    c.TTSModel,
		TTSVoice:    c.TTSVoice,
		TTSSpeed:    c.TTSSpeed,
		TTSFormat:   c.TTSFormat,
		MaxRetries:  c.MaxRetries,
		Timeout:     c.Timeout,
	}
}

func loadSpeechConfig(v *viper.Viper) (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv(v, "SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloatEnv(v, "SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := 1.0
	if speed != nil {
		if *speed <= 0 {
			return SpeechConfig{}, fmt.Errorf("invalid SPEECH_TTS_SPEED value %v: must be positive", *speed)
		}
		ttsSpeed = *speed
	}

	retries, err := parseOptionalIntEnv(v, "SPEECH_MAX_RETRIES")
	if err != nil {
		return SpeechConfig{}, err
	}
	maxRetries := 3
	if retries != nil {
		if *retries < 1 {
			maxRetries = 1
		} else {
			maxRetries = *retries
		}
	}

	apiKey := getEnvOrDefault(v, "OPENAI_API_KEY", "")

	return SpeechConfig{
		APIKey:      apiKey,
		BaseURL:     getEnvOrDefault(v, "OPENAI_BASE_URL", ""),
		STTModel:    getEnvOrDefault(v, "SPEECH_STT_MODEL", "whisper-1"),
		ASRLanguage: getEnvOrDefault(v, "SPEECH_ASR_LANGUAGE", "en"),
		TTSModel:    getEnvOrDefault(v, "SPEECH_TTS_MODEL", "tts-1"),
		TTSVoice:    getEnvOrDefault(v, "SPEECH_TTS_VOICE", "alloy"),
		TTSSpeed:    ttsSpeed,
		TTSFormat:   getEnvOrDefault(v, "SPEECH_TTS_FORMAT", "mp3"),
		MaxRetries:  maxRetries,
		Timeout:     timeoutSeconds,
		Enabled:     apiKey != "",
	}, nil
}

// SchedulingConfig 描述日历与预约相关配置。
type SchedulingConfig struct {
	CalendlyLink string
	MCPServerURL string
	MCPTimeout   time.Duration
	Timezone     string
	Backend      string
	PersonaFile  string
}

func loadSchedulingConfig(v *viper.Viper) (SchedulingConfig, error) {
	zone := getEnvOrDefault(v, "TIMEZONE", "America/New_York")
	if _, err := time.LoadLocation(zone); err != nil {
		return SchedulingConfig{}, fmt.Errorf("invalid TIMEZONE value %q: %w", zone, err)
	}

	backend := strings.ToLower(getEnvOrDefault(v, "BOOKING_BACKEND", BackendPlaywrightMCP))
	switch backend {
	case BackendPlaywrightMCP, BackendOfficeHours:
	default:
		return SchedulingConfig{}, fmt.Errorf("invalid BOOKING_BACKEND value %q: supported values are %s, %s",
			backend, BackendPlaywrightMCP, BackendOfficeHours)
	}

	timeout, err := parseOptionalIntEnv(v, "MCP_TIMEOUT")
	if err != nil {
		return SchedulingConfig{}, err
	}
	mcpTimeout := 30 * time.Second
	if timeout != nil && *timeout > 0 {
		mcpTimeout = time.Duration(*timeout) * time.Second
	}

	return SchedulingConfig{
		CalendlyLink: getEnvOrDefault(v, "CALENDLY_LINK", "https://calendly.com/your-handle/30min"),
		MCPServerURL: strings.TrimRight(getEnvOrDefault(v, "MCP_SERVER_URL", "http://localhost:3000"), "/"),
		MCPTimeout:   mcpTimeout,
		Timezone:     zone,
		Backend:      backend,
		PersonaFile:  getEnvOrDefault(v, "PERSONA_FILE", "data/persona.md"),
	}, nil
}

// RedisConfig 描述会话归档所用的 Redis。
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	HistoryTTL  time.Duration
	MaxMessages int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func loadRedisConfig(v *viper.Viper) (RedisConfig, error) {
	db, err := parseOptionalIntEnv(v, "REDIS_DB")
	if err != nil {
		return RedisConfig{}, err
	}
	dbIndex := 0
	if db != nil {
		dbIndex = *db
	}

	ttl := 24 * time.Hour
	if raw := getEnvOrDefault(v, "REDIS_HISTORY_TTL", ""); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return RedisConfig{}, fmt.Errorf("invalid REDIS_HISTORY_TTL value %q: %w", raw, err)
		}
		ttl = parsed
	}

	maxMessages := 10
	if override, err := parseOptionalIntEnv(v, "REDIS_HISTORY_MAX"); err != nil {
		return RedisConfig{}, err
	} else if override != nil && *override > 0 {
		maxMessages = *override
	}

	return RedisConfig{
		Addr:        getEnvOrDefault(v, "REDIS_ADDR", ""),
		Password:    getEnvOrDefault(v, "REDIS_PASSWORD", ""),
		DB:          dbIndex,
		HistoryTTL:  ttl,
		MaxMessages: maxMessages,
	}, nil
}

// LogConfig 日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

// HTTPConfig 跨域与限流配置。
type HTTPConfig struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func loadHTTPConfig(v *viper.Viper) (HTTPConfig, error) {
	rps, err := parseOptionalFloatEnv(v, "RATE_LIMIT_RPS")
	if err != nil {
		return HTTPConfig{}, err
	}
	rateLimit := 10.0
	if rps != nil {
		rateLimit = *rps
	}

	burst, err := parseOptionalIntEnv(v, "RATE_LIMIT_BURST")
	if err != nil {
		return HTTPConfig{}, err
	}
	rateBurst := 20
	if burst != nil {
		rateBurst = *burst
	}

	var origins []string
	for _, origin := range strings.Split(getEnvOrDefault(v, "CORS_ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	return HTTPConfig{
		AllowedOrigins: origins,
		RateLimitRPS:   rateLimit,
		RateLimitBurst: rateBurst,
	}, nil
}

func getEnvOrDefault(v *viper.Viper, key, defaultValue string) string {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(v *viper.Viper, key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(v *viper.Viper, key string) (*float64, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(v *viper.Viper, key string) (*int, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
