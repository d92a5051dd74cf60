package vlllm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vision-server-go/internal/core/providers"
	domainimage "vision-server-go/internal/domain/image"
	"vision-server-go/internal/platform/config"
	"vision-server-go/internal/utils"
)

// Config VLLLM配置结构
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Security    config.SecurityConfig
}

// ConfigFrom 从全局配置中的单个VLLLM条目构建Provider配置
func ConfigFrom(cfg config.VLLLMConfig) *Config {
	return &Config{
		Type:        cfg.Type,
		ModelName:   cfg.ModelName,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		Security:    cfg.Security,
	}
}

// Provider 多模态视觉模型提供者
type Provider interface {
	Initialize() error
	Cleanup() error
	// ResponseWithImage 处理包含图片的请求，返回流式回复通道
	ResponseWithImage(ctx context.Context, sessionID string, messages []providers.Message, imageData domainimage.ImageData, text string) (<-chan string, error)
}

// base 各后端共享的图片管线与HTTP客户端
type base struct {
	config        *Config
	imagePipeline *domainimage.Pipeline
	security      config.SecurityConfig
	logger        *utils.Logger
	httpClient    *http.Client
}

func newBase(cfg *Config, logger *utils.Logger) (*base, error) {
	security := cfg.Security
	imagePipeline, err := domainimage.NewPipeline(domainimage.Options{
		Security: &security,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise image pipeline: %w", err)
	}

	return &base{
		config:        cfg,
		security:      security,
		imagePipeline: imagePipeline,
		logger:        logger,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (b *base) Cleanup() error {
	b.logger.Info("VLLLM Provider cleaned up")
	return nil
}

// prepareImagePayload 将URL或内联base64的图片送入安全管线
func (b *base) prepareImagePayload(ctx context.Context, payload domainimage.ImageData) (*domainimage.Output, error) {
	if payload.Empty() {
		return nil, fmt.Errorf("missing image payload")
	}

	var (
		reader     io.ReadCloser
		formatHint = payload.Format
		err        error
	)

	if payload.URL != "" {
		reader, formatHint, err = b.downloadImage(ctx, payload.URL)
		if err != nil {
			return nil, err
		}
	} else {
		reader = io.NopCloser(base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload.Data)))
	}

	if closer := reader; closer != nil {
		defer closer.Close()
	}

	output, err := b.imagePipeline.Process(ctx, domainimage.Input{
		Reader:         reader,
		DeclaredFormat: formatHint,
		Source:         payload.Source(),
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

func (b *base) downloadImage(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Vision-Server/1.0")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isValidImageContentType(contentType) {
		resp.Body.Close()
		return nil, "", fmt.Errorf("unsupported content-type: %s", contentType)
	}

	if resp.ContentLength > 0 && b.security.MaxFileSize > 0 && resp.ContentLength > b.security.MaxFileSize {
		resp.Body.Close()
		return nil, "", fmt.Errorf("remote image exceeds max size: %d", resp.ContentLength)
	}

	return resp.Body, inferFormatFromContentType(contentType), nil
}

func isValidImageContentType(contentType string) bool {
	if contentType == "" {
		return false
	}

	lower := strings.ToLower(contentType)
	validContentTypes := []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
	}

	for _, valid := range validContentTypes {
		if strings.Contains(lower, valid) {
			return true
		}
	}
	return false
}

func inferFormatFromContentType(contentType string) string {
	lower := strings.ToLower(contentType)
	switch {
	case strings.Contains(lower, "jpeg"), strings.Contains(lower, "jpg"):
		return "jpeg"
	case strings.Contains(lower, "png"):
		return "png"
	case strings.Contains(lower, "gif"):
		return "gif"
	case strings.Contains(lower, "webp"):
		return "webp"
	case strings.Contains(lower, "bmp"):
		return "bmp"
	default:
		return ""
	}
}

// handleThinkTags 过滤流式回复中的思考标签内容
func handleThinkTags(content string, isActive bool) (string, bool) {
	if content == "" {
		return "", isActive
	}

	if content == "<think>" {
		return "", false
	}
	if content == "</think>" {
		return "", true
	}

	if !isActive {
		return "", isActive
	}

	return content, isActive
}
