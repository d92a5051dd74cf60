package vision

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"vision-server-go/internal/core/providers"
	"vision-server-go/internal/core/providers/vlllm"
	domainauth "vision-server-go/internal/domain/auth"
	"vision-server-go/internal/domain/eventbus"
	domainimage "vision-server-go/internal/domain/image"
	"vision-server-go/internal/domain/recognition"
	"vision-server-go/internal/platform/config"
	"vision-server-go/internal/platform/errors"
	"vision-server-go/internal/utils"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

const (
	// MaxFileSize 最大文件大小为5MB
	MaxFileSize = 5 * 1024 * 1024
)

// Service Vision服务的HTTP传输层实现
type Service struct {
	logger        *utils.Logger
	config        *config.Config
	imagePipeline *domainimage.Pipeline
	provider      vlllm.Provider
	providerName  string
	recognizer    *recognition.Recognizer
	authToken     *domainauth.AuthToken
}

// NewService 创建新的Vision服务实例。recognizer 可以为 nil，此时跳过人物识别。
func NewService(
	cfg *config.Config,
	logger *utils.Logger,
	imagePipeline *domainimage.Pipeline,
	recognizer *recognition.Recognizer,
) (*Service, error) {
	if cfg == nil {
		return nil, errors.Wrap(errors.KindConfig, "vision.new", "config is required", nil)
	}
	if logger == nil {
		return nil, errors.Wrap(errors.KindConfig, "vision.new", "logger is required", nil)
	}
	if imagePipeline == nil {
		return nil, errors.Wrap(errors.KindConfig, "vision.new", "image pipeline is required", nil)
	}

	service := &Service{
		logger:        logger,
		config:        cfg,
		imagePipeline: imagePipeline,
		recognizer:    recognizer,
	}

	// 初始化认证工具
	service.authToken = domainauth.NewAuthToken(cfg.Server.Token)

	// 初始化VLLLM provider
	if err := service.initVLLMProvider(); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "vision.new", "failed to init VLLLM provider", err)
	}

	return service, nil
}

// Register 注册Vision相关的HTTP路由
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	// Vision 主接口（GET用于状态检查，POST用于图片分析）
	router.GET("/vision", s.handleGet)
	router.POST("/vision", s.handlePost)
	router.OPTIONS("/vision", s.handleOptions)

	s.logger.InfoTag("HTTP", "Vision服务路由注册完成")
	return nil
}

// initVLLMProvider 按 selected_module 从注册表创建provider
func (s *Service) initVLLMProvider() error {
	selected := s.config.Selected.VLLLM
	if selected == "" {
		s.logger.WarnTag("视觉", "请先设置 VLLLM provider 配置")
		return errors.Wrap(errors.KindConfig, "init_vlllm", "VLLLM provider not configured", nil)
	}

	vlllmConfig, ok := s.config.VLLLM[selected]
	if !ok {
		return errors.Wrap(errors.KindConfig, "init_vlllm", fmt.Sprintf("VLLLM config %q not found", selected), nil)
	}

	provider, err := vlllm.Create(vlllm.ConfigFrom(vlllmConfig), s.logger)
	if err != nil {
		s.logger.WarnTag("视觉", "创建 provider 失败: %v", err)
		return errors.Wrap(errors.KindVision, "init_vlllm", "failed to create VLLLM provider", err)
	}

	s.provider = provider
	s.providerName = selected
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *Service) handleOptions(c *gin.Context) {
	s.logger.InfoVision("收到 CORS 预检请求 (OPTIONS)")
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleGet 处理GET请求（状态检查）
func (s *Service) handleGet(c *gin.Context) {
	s.addCORSHeaders(c)

	var message string
	if s.provider != nil {
		message = fmt.Sprintf("Vision 接口运行正常，当前视觉分析模型: %s", s.providerName)
	} else {
		message = "Vision 接口运行不正常，没有可用的VLLLM provider"
	}

	c.String(http.StatusOK, message)
}

// handlePost 处理POST请求（图片分析）
func (s *Service) handlePost(c *gin.Context) {
	s.addCORSHeaders(c)

	deviceID := c.GetHeader("Device-Id")

	// 验证认证
	authResult, err := s.verifyAuth(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		s.logger.Warn("vision 认证失败: %v", err)
		return
	}

	if !authResult.IsValid {
		s.respondError(c, http.StatusUnauthorized, "无效的认证token或设备ID不匹配")
		s.logger.Warn("Vision认证失败: %s", authResult.DeviceID)
		return
	}

	// 解析multipart表单
	req, err := s.parseMultipartRequest(c, deviceID)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		s.logger.Warn("Vision请求解析失败: %v", err)
		return
	}

	s.logger.Debug("收到Vision分析请求: %+v", map[string]interface{}{
		"device_id":  req.DeviceID,
		"client_id":  req.ClientID,
		"question":   req.Question,
		"image_size": len(req.ImageData.Data),
		"image_path": req.ImagePath,
	})

	answer, err := s.processVisionRequest(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err.Error())
		s.logger.Warn("Vision请求处理失败: %v", err)
		eventbus.PublishAsync(eventbus.EventVisionFailed, eventbus.VisionEventData{
			DeviceID: req.DeviceID,
			ClientID: req.ClientID,
			Question: req.Question,
			Error:    err.Error(),
		})
		return
	}

	s.logger.InfoVision("Vision分析完成: 设备=%s 回答长度=%d", req.DeviceID, len(answer))
	eventbus.PublishAsync(eventbus.EventVisionAnswered, eventbus.VisionEventData{
		DeviceID: req.DeviceID,
		ClientID: req.ClientID,
		Question: req.Question,
		Answer:   answer,
	})

	s.respondAnswer(c, answer)
}

// verifyAuth 验证认证token
func (s *Service) verifyAuth(c *gin.Context) (*AuthVerifyResult, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.Wrap(errors.KindTransport, "verify_auth", "invalid auth header format", nil)
	}

	token := authHeader[7:] // 移除"Bearer "前缀

	isValid, deviceID, err := s.authToken.VerifyToken(token)
	if err != nil || !isValid {
		s.logger.Warn("认证token验证失败: %v", err)
		return nil, errors.Wrap(errors.KindTransport, "verify_auth", "token verification failed", err)
	}

	// 检查设备ID匹配
	requestDeviceID := c.GetHeader("Device-Id")
	if requestDeviceID != deviceID {
		s.logger.Warn(
			"设备ID与token不匹配: 请求设备ID=%s, token设备ID=%s",
			requestDeviceID,
			deviceID,
		)
		return nil, errors.Wrap(errors.KindTransport, "verify_auth", "device ID mismatch", nil)
	}

	return &AuthVerifyResult{
		IsValid:  true,
		DeviceID: deviceID,
	}, nil
}

// parseMultipartRequest 解析multipart表单请求
func (s *Service) parseMultipartRequest(
	c *gin.Context,
	deviceID string,
) (*VisionRequest, error) {
	err := c.Request.ParseMultipartForm(MaxFileSize)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "parse_request", "failed to parse multipart form", err)
	}

	question := utils.RemoveControlCharacters(c.Request.FormValue("question"))
	if question == "" {
		return nil, errors.Wrap(errors.KindTransport, "parse_request", "question field is required", nil)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "parse_request", "file field is required", err)
	}
	defer file.Close()

	if header.Size > MaxFileSize {
		return nil, errors.Wrap(errors.KindTransport, "parse_request", "file size exceeds limit", fmt.Errorf("max size: %dMB", MaxFileSize/1024/1024))
	}

	input := domainimage.Input{
		Reader:         file,
		DeclaredFormat: detectImageFormatFromFilename(header.Filename),
		Source:         "upload",
	}

	output, err := s.imagePipeline.Process(c.Request.Context(), input)
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, "parse_request", "image processing failed", err)
	}

	// 将图片保存在本地
	savedPath, err := s.saveImageToFile(output.Bytes, deviceID, output.Format)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "parse_request", "failed to save image file", err)
	}

	return &VisionRequest{
		Question: question,
		ImageData: domainimage.ImageData{
			Data:   output.Base64,
			Format: output.Format,
		},
		RawBytes:  output.Bytes,
		DeviceID:  deviceID,
		ClientID:  c.GetHeader("Client-Id"),
		ImagePath: savedPath,
	}, nil
}

// saveImageToFile 将图片保存到本地文件
func (s *Service) saveImageToFile(imageData []byte, deviceID, format string) (string, error) {
	deviceIDFormat := strings.ReplaceAll(deviceID, ":", "_")
	filename := fmt.Sprintf(
		"%s_%d.%s",
		deviceIDFormat,
		time.Now().Unix(),
		format,
	)
	filepath := fmt.Sprintf("data/uploads/%s", filename)

	if err := os.MkdirAll("data/uploads", os.ModePerm); err != nil {
		return "", errors.Wrap(errors.KindStorage, "save_image", "failed to create uploads directory", err)
	}

	if err := os.WriteFile(filepath, imageData, 0o644); err != nil {
		return "", errors.Wrap(errors.KindStorage, "save_image", "failed to write image file", err)
	}

	s.logger.Info("图片已保存到: %s", filepath)
	return filepath, nil
}

// processVisionRequest 处理视觉分析请求：识别 -> 问题注入 -> VLLLM -> 回答注入。
// 识别是可选增强，任何识别失败都退回到原始问题继续分析。
func (s *Service) processVisionRequest(ctx context.Context, req *VisionRequest) (string, error) {
	if s.provider == nil {
		return "", errors.Wrap(errors.KindVision, "process_request", "no available vision model", nil)
	}

	question := req.Question
	var names []string

	if s.recognizer != nil && s.recognizer.Enabled() {
		result := s.recognizer.Recognize(ctx, req.DeviceID, req.RawBytes)
		if result.Success {
			names = recognition.FilterNames(result.People)
			question = recognition.AugmentQuestion(question, names)
		} else {
			s.logger.WarnTag("识别", "识别失败，使用原始问题继续: %s", result.Message)
		}
	}

	messages := []providers.Message{} // 空的历史消息
	responseChan, err := s.provider.ResponseWithImage(
		ctx,
		"",
		messages,
		req.ImageData,
		question,
	)
	if err != nil {
		return "", errors.Wrap(errors.KindVision, "process_request", "VLLLM call failed", err)
	}

	var result strings.Builder
	for content := range responseChan {
		result.WriteString(content)
	}

	answer := recognition.AugmentAnswer(result.String(), names)
	return answer, nil
}

// detectImageFormatFromFilename 从文件名检测图片格式
func detectImageFormatFromFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "png"
	case strings.HasSuffix(lower, ".gif"):
		return "gif"
	case strings.HasSuffix(lower, ".bmp"):
		return "bmp"
	case strings.HasSuffix(lower, ".webp"):
		return "webp"
	default:
		return "jpeg" // 默认格式
	}
}

// addCORSHeaders 添加CORS头
func (s *Service) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "client-id, content-type, device-id, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// respondAnswer 返回分析成功载荷
func (s *Service) respondAnswer(c *gin.Context, answer string) {
	payload, err := sonic.Marshal(VisionResponse{
		Success:  true,
		Action:   "RESPONSE",
		Response: answer,
	})
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "序列化响应失败")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// respondError 返回错误响应
func (s *Service) respondError(c *gin.Context, statusCode int, message string) {
	payload, err := sonic.Marshal(VisionResponse{
		Success: false,
		Message: message,
	})
	if err != nil {
		c.JSON(statusCode, gin.H{"success": false, "message": message})
		return
	}
	c.Data(statusCode, "application/json; charset=utf-8", payload)
}

// Cleanup 清理资源
func (s *Service) Cleanup() error {
	if s.provider != nil {
		if err := s.provider.Cleanup(); err != nil {
			s.logger.WarnTag("视觉", "清理 provider %s 失败: %v", s.providerName, err)
		}
	}
	s.logger.InfoVision("服务清理完成")
	return nil
}
