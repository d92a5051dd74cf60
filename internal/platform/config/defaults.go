package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:    "0.0.0.0",
			Port:  8080,
			Token: "your_token",
			Auth: AuthConfig{
				Enabled: true,
				Store: StoreConfig{
					Type:   "memory",
					Expiry: 24 * time.Hour,
				},
			},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			StaticDir: "./web",
			VisionURL: "http://your_ip:8080/api/vision",
		},
		Immich: ImmichConfig{
			MaxRetries:  20,
			WaitSeconds: 3,
			Timeout:     30,
			PhotoLimit:  10,
		},
		FaceGate: FaceGateConfig{
			Enabled:      true,
			SkinRatio:    0.04,
			MaxSampleDim: 64,
		},
		Selected: SelectedConfig{
			VLLLM: "ChatGLMVLLM",
		},
		VLLLM: map[string]VLLLMConfig{
			"ChatGLMVLLM": {
				Type:        "openai",
				ModelName:   "glm-4v-flash",
				BaseURL:     "https://open.bigmodel.cn/api/paas/v4/",
				APIKey:      "your_api_key",
				MaxTokens:   4096,
				Temperature: 0.7,
				TopP:        0.9,
				Security: SecurityConfig{
					MaxFileSize:       5242880,
					MaxPixels:         16777216,
					MaxWidth:          4096,
					MaxHeight:         4096,
					AllowedFormats:    []string{"jpeg", "jpg", "png", "webp", "gif"},
					EnableDeepScan:    true,
					ValidationTimeout: "10s",
				},
			},
			"OllamaVLLM": {
				Type:        "ollama",
				ModelName:   "qwen2.5vl",
				BaseURL:     "http://localhost:11434",
				MaxTokens:   4096,
				Temperature: 0.7,
				TopP:        0.9,
				Security: SecurityConfig{
					MaxFileSize:       5242880,
					MaxPixels:         16777216,
					MaxWidth:          4096,
					MaxHeight:         4096,
					AllowedFormats:    []string{"jpeg", "jpg", "png", "webp", "gif"},
					EnableDeepScan:    true,
					ValidationTimeout: "10s",
				},
			},
		},
	}
}
