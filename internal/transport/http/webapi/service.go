package webapi

import (
	"context"
	"net/http"
	"time"

	domainauth "vision-server-go/internal/domain/auth"
	"vision-server-go/internal/platform/config"
	"vision-server-go/internal/platform/errors"
	"vision-server-go/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Service WebAPI服务的HTTP传输层实现
type Service struct {
	logger      *utils.Logger
	config      *config.Config
	authManager *domainauth.Manager
	authToken   *domainauth.AuthToken
}

// NewService 创建新的WebAPI服务实例。authManager 可以为 nil，此时不提供token签发。
func NewService(cfg *config.Config, logger *utils.Logger, authManager *domainauth.Manager) (*Service, error) {
	if cfg == nil {
		return nil, errors.Wrap(errors.KindConfig, "webapi.new", "config is required", nil)
	}
	if logger == nil {
		return nil, errors.Wrap(errors.KindConfig, "webapi.new", "logger is required", nil)
	}

	service := &Service{
		logger:      logger,
		config:      cfg,
		authManager: authManager,
		authToken:   domainauth.NewAuthToken(cfg.Server.Token),
	}

	return service, nil
}

// Register 注册WebAPI相关的HTTP路由
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	// 基础路由
	router.GET("/cfg", s.handleCfgGet)
	router.OPTIONS("/cfg", s.handleOptions)

	// 设备token签发
	router.POST("/auth/token", s.handleAuthToken)

	// 系统信息
	router.GET("/system/info", s.handleSystemInfo)

	// 管理员路由
	s.registerAdminRoutes(router)

	s.logger.InfoTag("HTTP", "WebAPI服务路由注册完成")
	return nil
}

// registerAdminRoutes 注册管理员相关路由
func (s *Service) registerAdminRoutes(router *gin.RouterGroup) {
	adminGroup := router.Group("/admin")
	adminGroup.GET("", s.handleAdminGet)

	// 需要认证的分组
	securedGroup := adminGroup.Group("")
	securedGroup.Use(s.authMiddleware())
	{
		securedGroup.GET("/system", s.handleSystemGet)
		securedGroup.POST("/system", s.handleSystemPost)
		securedGroup.GET("/clients", s.handleClientsGet)
	}
}

// handleCfgGet 处理配置服务状态检查
func (s *Service) handleCfgGet(c *gin.Context) {
	s.respondSuccess(c, http.StatusOK, nil, "Cfg service is running")
}

// handleOptions 处理OPTIONS请求
func (s *Service) handleOptions(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, AuthorToken")
	c.Status(http.StatusNoContent)
}

// TokenRequest 设备token签发请求
type TokenRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	ClientID string `json:"client_id"`
}

// handleAuthToken 为设备签发JWT，并在认证存储里登记客户端
func (s *Service) handleAuthToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "device_id is required")
		return
	}

	if req.ClientID == "" {
		req.ClientID = uuid.New().String()
	}

	token, err := s.authToken.GenerateToken(req.DeviceID)
	if err != nil {
		s.logger.Error("签发token失败: %v", err)
		s.respondError(c, http.StatusInternalServerError, "failed to issue token")
		return
	}

	if s.authManager != nil {
		info := domainauth.ClientInfo{
			ClientID: req.ClientID,
			DeviceID: req.DeviceID,
			IP:       c.ClientIP(),
		}
		if err := s.authManager.RegisterClient(c.Request.Context(), info); err != nil {
			s.logger.Warn("登记客户端失败: %v", err)
		}
	}

	s.respondSuccess(c, http.StatusOK, gin.H{
		"token":     token,
		"client_id": req.ClientID,
		"device_id": req.DeviceID,
	}, "token issued")
}

// handleSystemInfo 返回主机运行状态
func (s *Service) handleSystemInfo(c *gin.Context) {
	info := gin.H{}

	if hostInfo, err := host.Info(); err == nil {
		info["hostname"] = hostInfo.Hostname
		info["os"] = hostInfo.OS
		info["platform"] = hostInfo.Platform
		info["uptime"] = hostInfo.Uptime
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info["mem_total"] = memInfo.Total
		info["mem_used_percent"] = memInfo.UsedPercent
	}

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = percents[0]
	}

	s.respondSuccess(c, http.StatusOK, info, "System info retrieved successfully")
}

// handleAdminGet 处理管理员服务状态检查
func (s *Service) handleAdminGet(c *gin.Context) {
	s.respondSuccess(c, http.StatusOK, nil, "Admin service is running")
}

// SystemConfig 系统配置结构
type SystemConfig struct {
	SelectedVLLLM   string `json:"selectedVLLLM"`
	ImmichEnabled   bool   `json:"immichEnabled"`
	FaceGateEnabled bool   `json:"faceGateEnabled"`
}

// handleSystemGet 获取系统配置
func (s *Service) handleSystemGet(c *gin.Context) {
	cfg := SystemConfig{
		SelectedVLLLM:   s.config.Selected.VLLLM,
		ImmichEnabled:   s.config.Immich.APIURL != "",
		FaceGateEnabled: s.config.FaceGate.Enabled,
	}

	vllmList := make([]string, 0, len(s.config.VLLLM))
	for name := range s.config.VLLLM {
		vllmList = append(vllmList, name)
	}

	s.respondSuccess(c, http.StatusOK, gin.H{
		"selectedVLLLM":   cfg.SelectedVLLLM,
		"immichEnabled":   cfg.ImmichEnabled,
		"faceGateEnabled": cfg.FaceGateEnabled,
		"vllmList":        vllmList,
	}, "System configuration retrieved successfully")
}

// handleSystemPost 更新系统配置（只允许切换VLLLM，不做持久化）
func (s *Service) handleSystemPost(c *gin.Context) {
	var requestData struct {
		SelectedVLLLM string `json:"selectedVLLLM"`
	}

	if err := c.ShouldBindJSON(&requestData); err != nil {
		s.respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if requestData.SelectedVLLLM != "" {
		if _, ok := s.config.VLLLM[requestData.SelectedVLLLM]; !ok {
			s.respondError(c, http.StatusBadRequest, "Unknown VLLLM configuration")
			return
		}
		s.config.Selected.VLLLM = requestData.SelectedVLLLM
		s.logger.Info("切换VLLLM配置: %s", requestData.SelectedVLLLM)
	}

	s.respondSuccess(c, http.StatusOK, nil, "System configuration updated")
}

// handleClientsGet 列出已登记的客户端
func (s *Service) handleClientsGet(c *gin.Context) {
	if s.authManager == nil {
		s.respondError(c, http.StatusNotImplemented, "auth manager not configured")
		return
	}

	clients, err := s.authManager.List(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "failed to list clients")
		return
	}
	s.respondSuccess(c, http.StatusOK, gin.H{"clients": clients}, "ok")
}

// authMiddleware 认证中间件
func (s *Service) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apikey := c.GetHeader("AuthorToken")
		if apikey != "" {
			// 如果提供了API Token，直接验证
			if apikey != s.config.Server.Token {
				s.logger.Error("无效的API Token %s", apikey)
				s.respondError(c, http.StatusUnauthorized, "无效的API Token")
				c.Abort()
				return
			}
			c.Next()
			return
		}

		token := c.GetHeader("Authorization")
		if token == "" {
			s.respondError(c, http.StatusUnauthorized, "未提供认证token")
			c.Abort()
			return
		}
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		isValid, _, err := s.authToken.VerifyToken(token)
		if err != nil || !isValid {
			s.logger.Error("无效的token: %v", err)
			s.respondError(c, http.StatusUnauthorized, "无效的token")
			c.Abort()
			return
		}

		c.Next()
	}
}

// respondSuccess 返回成功响应
func (s *Service) respondSuccess(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
		"message": message,
		"code":    statusCode,
	})
}

// respondError 返回错误响应
func (s *Service) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"data":    gin.H{"error": message},
		"message": message,
		"code":    statusCode,
	})
}
