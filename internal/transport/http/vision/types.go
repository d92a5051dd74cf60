package vision

import (
	"vision-server-go/internal/domain/image"
)

// VisionRequest Vision分析请求结构
type VisionRequest struct {
	Question  string          // 问题文本
	ImageData image.ImageData // 经过安全管线的图片数据
	RawBytes  []byte          // 原始图片字节，供识别链路复用
	DeviceID  string          // 设备ID
	ClientID  string          // 客户端ID
	ImagePath string          // 图片保存路径
}

// VisionResponse 视觉分析的最终返回载荷。
// 成功时 action 固定为 RESPONSE，失败时只带 message。
type VisionResponse struct {
	Success  bool   `json:"success"`
	Action   string `json:"action,omitempty"`
	Response string `json:"response,omitempty"`
	Message  string `json:"message,omitempty"`
}

// AuthVerifyResult 认证验证结果
type AuthVerifyResult struct {
	IsValid  bool
	DeviceID string
}
