package config

import (
	"time"
)

type Config struct {
	Server   ServerConfig           `yaml:"server"`
	Log      LogConfig              `yaml:"log"`
	Web      WebConfig              `yaml:"web"`
	Immich   ImmichConfig           `yaml:"immich"`
	FaceGate FaceGateConfig         `yaml:"face_gate"`
	Selected SelectedConfig         `yaml:"selected_module"`
	VLLLM    map[string]VLLLMConfig `yaml:"VLLLM"`
}

type ServerConfig struct {
	IP    string     `yaml:"ip"`
	Port  int        `yaml:"port"`
	Token string     `yaml:"token"`
	Auth  AuthConfig `yaml:"auth"`
}

type AuthConfig struct {
	Enabled bool        `yaml:"enabled"`
	Store   StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	Type    string          `yaml:"type"`
	Expiry  time.Duration   `yaml:"expiry"`
	Cleanup time.Duration   `yaml:"cleanup"`
	Redis   AuthRedisStore  `yaml:"redis,omitempty"`
	SQLite  AuthSQLiteStore `yaml:"sqlite,omitempty"`
	Memory  AuthMemoryStore `yaml:"memory,omitempty"`
}

type AuthRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type AuthSQLiteStore struct {
	DSN string `yaml:"dsn,omitempty"`
}

type AuthMemoryStore struct {
	Cleanup time.Duration `yaml:"cleanup"`
}

type LogConfig struct {
	Level  string `yaml:"log_level"`
	Dir    string `yaml:"log_dir"`
	File   string `yaml:"log_file"`
	Format string `yaml:"log_format"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StaticDir string `yaml:"static_dir"`
	VisionURL string `yaml:"vision"`
}

// ImmichConfig 资产服务（Immich）接入配置。
// 识别功能是否启用由凭据形态决定：api_url 且（api_key 或 email+password）。
type ImmichConfig struct {
	APIURL      string `yaml:"api_url"`
	APIKey      string `yaml:"api_key"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	MaxRetries  int    `yaml:"max_retries"`
	WaitSeconds int    `yaml:"wait_seconds"`
	Timeout     int    `yaml:"timeout"`
	PhotoLimit  int    `yaml:"photo_limit"`
}

// FaceGateConfig 本地人脸存在预检配置
type FaceGateConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SkinRatio    float64 `yaml:"skin_ratio"`
	MaxSampleDim int     `yaml:"max_sample_dim"`
}

type SelectedConfig struct {
	VLLLM string `yaml:"VLLLM"`
}

type VLLLMConfig struct {
	Type        string                 `yaml:"type"`
	ModelName   string                 `yaml:"model_name"`
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	TopP        float64                `yaml:"top_p"`
	Security    SecurityConfig         `yaml:"security"`
	Extra       map[string]interface{} `yaml:",inline"`
}

type SecurityConfig struct {
	MaxFileSize       int64    `yaml:"max_file_size"`
	MaxPixels         int64    `yaml:"max_pixels"`
	MaxWidth          int      `yaml:"max_width"`
	MaxHeight         int      `yaml:"max_height"`
	AllowedFormats    []string `yaml:"allowed_formats"`
	EnableDeepScan    bool     `yaml:"enable_deep_scan"`
	ValidationTimeout string   `yaml:"validation_timeout"`
}
