package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vision-server-go/internal/platform/errors"
)

// Loader 从 .config.yaml 与环境变量加载配置
type Loader struct {
	useDotEnv bool
}

// NewLoader creates a loader with dotenv support enabled.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Load 加载配置：默认值 -> .config.yaml（当前目录或 data/）-> 环境变量覆盖
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()

	path := findConfigFile()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "读取配置文件失败", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "解析配置文件失败", err)
		}
	}

	l.applyEnvOverrides(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithPath 与 Load 相同，但同时返回实际使用的配置文件路径（未找到时为空）。
func (l *Loader) LoadWithPath() (*Config, string, error) {
	path := findConfigFile()
	cfg, err := l.Load()
	return cfg, path, err
}

func findConfigFile() string {
	candidates := []string{
		".config.yaml",
		filepath.Join("data", ".config.yaml"),
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// applyEnvOverrides 环境变量覆盖敏感配置项，便于不落盘部署
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("IMMICH_API_URL"); v != "" {
		cfg.Immich.APIURL = v
	}
	if v := os.Getenv("IMMICH_API_KEY"); v != "" {
		cfg.Immich.APIKey = v
	}
	if v := os.Getenv("IMMICH_EMAIL"); v != "" {
		cfg.Immich.Email = v
	}
	if v := os.Getenv("IMMICH_PASSWORD"); v != "" {
		cfg.Immich.Password = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("无效的服务端口: %d", cfg.Server.Port))
	}
	if cfg.Immich.MaxRetries < 0 {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("无效的识别轮询次数: %d", cfg.Immich.MaxRetries))
	}
	if cfg.FaceGate.SkinRatio < 0 || cfg.FaceGate.SkinRatio > 1 {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("无效的肤色占比阈值: %f", cfg.FaceGate.SkinRatio))
	}
	return nil
}
