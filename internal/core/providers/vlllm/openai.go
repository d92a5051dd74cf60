package vlllm

import (
	"context"
	"fmt"

	"vision-server-go/internal/core/providers"
	domainimage "vision-server-go/internal/domain/image"
	"vision-server-go/internal/utils"

	"github.com/sashabaranov/go-openai"
)

func init() {
	Register("openai", func(cfg *Config, logger *utils.Logger) (Provider, error) {
		b, err := newBase(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &OpenAIProvider{base: b}, nil
	})
}

// OpenAIProvider 走OpenAI兼容的多模态Chat Completions接口
type OpenAIProvider struct {
	*base
	client *openai.Client
}

// Initialize 初始化OpenAI客户端
func (p *OpenAIProvider) Initialize() error {
	if p.config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(p.config.APIKey)
	if p.config.BaseURL != "" {
		clientConfig.BaseURL = p.config.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientConfig)

	p.logger.Debug(
		"VLLLM Provider初始化成功: type=%s model_name=%s",
		p.config.Type,
		p.config.ModelName,
	)
	return nil
}

// ResponseWithImage 处理包含图片的请求
func (p *OpenAIProvider) ResponseWithImage(ctx context.Context, sessionID string, messages []providers.Message, imageData domainimage.ImageData, text string) (<-chan string, error) {
	output, err := p.prepareImagePayload(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("image pipeline: %w", err)
	}

	base64Image := output.Base64
	format := output.Validation.Format

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

		// 构建OpenAI多模态消息
		chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

		// 添加历史消息
		for _, msg := range messages {
			chatMessages = append(chatMessages, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}

		visionMessage := openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: text,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:image/%s;base64,%s", format, base64Image),
					},
				},
			},
		}
		chatMessages = append(chatMessages, visionMessage)

		stream, err := p.client.CreateChatCompletionStream(
			ctx,
			openai.ChatCompletionRequest{
				Model:       p.config.ModelName,
				Messages:    chatMessages,
				Stream:      true,
				Temperature: float32(p.config.Temperature),
				TopP:        float32(p.config.TopP),
			},
		)
		if err != nil {
			responseChan <- fmt.Sprintf("【VLLLM服务响应异常: %v】", err)
			p.logger.Error("OpenAI Vision API调用失败 %v", err)
			return
		}
		defer stream.Close()

		p.logger.Info("OpenAI Vision API调用成功，开始接收流式回复")

		isActive := true
		for {
			response, err := stream.Recv()
			if err != nil {
				break
			}

			if len(response.Choices) > 0 {
				content := response.Choices[0].Delta.Content
				if content != "" {
					// 处理思考标签
					if content, isActive = handleThinkTags(content, isActive); content != "" {
						responseChan <- content
					}
				}
			}
		}

		p.logger.Info("OpenAI Vision API流式回复完成")
	}()

	return responseChan, nil
}
