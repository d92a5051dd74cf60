package vlllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"vision-server-go/internal/core/providers"
	domainimage "vision-server-go/internal/domain/image"
	"vision-server-go/internal/utils"
)

func init() {
	Register("ollama", func(cfg *Config, logger *utils.Logger) (Provider, error) {
		b, err := newBase(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &OllamaProvider{base: b}, nil
	})
}

// OllamaProvider 走本地Ollama的 /api/chat 多模态接口
type OllamaProvider struct {
	*base
}

// OllamaRequest Ollama API请求结构
type OllamaRequest struct {
	Model    string                 `json:"model"`
	Messages []OllamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaMessage Ollama消息结构
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64编码的图片
}

// OllamaResponse Ollama API响应结构
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Initialize Ollama不需要API key，只需要确保有BaseURL
func (p *OllamaProvider) Initialize() error {
	if p.config.BaseURL == "" {
		p.config.BaseURL = "http://localhost:11434" // 默认Ollama地址
	}
	p.logger.Debug(
		"Ollama VLLLM初始化成功: base_url=%s model=%s",
		p.config.BaseURL,
		p.config.ModelName,
	)
	return nil
}

// ResponseWithImage 处理包含图片的请求
func (p *OllamaProvider) ResponseWithImage(ctx context.Context, sessionID string, messages []providers.Message, imageData domainimage.ImageData, text string) (<-chan string, error) {
	output, err := p.prepareImagePayload(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("image pipeline: %w", err)
	}

	base64Image := output.Base64

	p.logger.Debug(
		"invoke vision API: type=%s model_name=%s text_length=%d image_bytes=%d",
		p.config.Type,
		p.config.ModelName,
		len(text),
		len(output.Bytes),
	)

	responseChan := make(chan string, 10)

	go func() {
		defer close(responseChan)

		ollamaMessages := make([]OllamaMessage, 0, len(messages)+1)

		// 添加历史消息
		for _, msg := range messages {
			ollamaMessages = append(ollamaMessages, OllamaMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}

		// Ollama需要纯base64，不需要data URL前缀
		visionMessage := OllamaMessage{
			Role:    "user",
			Content: text,
			Images:  []string{base64Image},
		}
		ollamaMessages = append(ollamaMessages, visionMessage)

		request := OllamaRequest{
			Model:    p.config.ModelName,
			Messages: ollamaMessages,
			Stream:   true,
			Options: map[string]interface{}{
				"temperature": p.config.Temperature,
				"top_p":       p.config.TopP,
			},
		}

		requestBody, err := json.Marshal(request)
		if err != nil {
			responseChan <- fmt.Sprintf("【请求序列化失败: %v】", err)
			p.logger.Error("Ollama请求序列化失败: %v", err)
			return
		}

		url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
		if err != nil {
			responseChan <- fmt.Sprintf("【创建请求失败: %v】", err)
			p.logger.Error("创建Ollama请求失败: %v", err)
			return
		}

		req.Header.Set("Content-Type", "application/json")

		p.logger.Info(
			"向Ollama发送多模态请求: url=%s model=%s text_length=%d",
			url,
			p.config.ModelName,
			len(text),
		)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			responseChan <- fmt.Sprintf("【Ollama API调用失败: %v】", err)
			p.logger.Error("Ollama API调用失败: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			responseChan <- fmt.Sprintf("【Ollama API返回错误: %d】", resp.StatusCode)
			p.logger.Error(
				"Ollama API返回错误: status_code=%d status=%s",
				resp.StatusCode,
				resp.Status,
			)
			return
		}

		p.logger.Info("Ollama Vision API调用成功，开始接收流式回复")

		decoder := json.NewDecoder(resp.Body)
		isActive := true

		for {
			var response OllamaResponse
			if err := decoder.Decode(&response); err != nil {
				if err.Error() != "EOF" {
					p.logger.Error("解析Ollama响应失败: %v", err)
				}
				break
			}

			content := response.Message.Content
			if content != "" {
				// 处理思考标签
				if content, isActive = handleThinkTags(content, isActive); content != "" {
					responseChan <- content
				}
			}

			if response.Done {
				break
			}
		}

		p.logger.Info("Ollama Vision API流式回复完成")
	}()

	return responseChan, nil
}
