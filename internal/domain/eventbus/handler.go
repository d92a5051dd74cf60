package eventbus

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"vision-server-go/internal/platform/storage"
	"vision-server-go/internal/utils"
)

// EventHandler 事件处理器接口
type EventHandler interface {
	Handle(eventType string, data interface{})
}

// DefaultEventHandler 默认事件处理器，只做日志记录
type DefaultEventHandler struct {
	logger *utils.Logger
}

// NewDefaultEventHandler 创建默认事件处理器
func NewDefaultEventHandler(logger *utils.Logger) *DefaultEventHandler {
	return &DefaultEventHandler{logger: logger}
}

// Handle 处理事件
func (h *DefaultEventHandler) Handle(eventType string, data interface{}) {
	switch eventType {
	case EventRecognitionCompleted:
		h.handleRecognitionCompleted(data.(RecognitionEventData))
	case EventVisionAnswered:
		h.handleVisionAnswered(data.(VisionEventData))
	case EventVisionFailed:
		h.handleVisionFailed(data.(VisionEventData))
	case EventSystemError:
		h.handleError(data.(SystemEventData))
	default:
		h.logger.WarnTag("事件", "未处理的事件类型: %s", eventType)
	}
}

// handleRecognitionCompleted 处理识别完成事件
func (h *DefaultEventHandler) handleRecognitionCompleted(data RecognitionEventData) {
	h.logger.InfoTag("事件", "识别完成: 设备=%s, 资产=%s, 人数=%d, 成功=%v",
		data.DeviceID, data.AssetID, data.PeopleCount, data.Success)
}

// handleVisionAnswered 处理视觉问答完成事件
func (h *DefaultEventHandler) handleVisionAnswered(data VisionEventData) {
	h.logger.InfoTag("事件", "视觉问答完成: 设备=%s, 问题长度=%d, 回答长度=%d",
		data.DeviceID, len(data.Question), len(data.Answer))
}

// handleVisionFailed 处理视觉问答失败事件
func (h *DefaultEventHandler) handleVisionFailed(data VisionEventData) {
	h.logger.WarnTag("事件", "视觉问答失败: 设备=%s, 错误=%s",
		data.DeviceID, data.Error)
}

// handleError 处理错误事件
func (h *DefaultEventHandler) handleError(data SystemEventData) {
	h.logger.ErrorTag("事件", "系统错误: 级别=%s, 消息=%s",
		data.Level, data.Message)
}

// SetupEventHandlers 设置事件处理器
func SetupEventHandlers(logger *utils.Logger) {
	handler := NewDefaultEventHandler(logger)

	Subscribe(EventRecognitionCompleted, func(args ...interface{}) {
		if len(args) > 0 {
			handler.Handle(EventRecognitionCompleted, args[0])
		}
	})

	Subscribe(EventVisionAnswered, func(args ...interface{}) {
		if len(args) > 0 {
			handler.Handle(EventVisionAnswered, args[0])
		}
	})

	Subscribe(EventVisionFailed, func(args ...interface{}) {
		if len(args) > 0 {
			handler.Handle(EventVisionFailed, args[0])
		}
	})

	Subscribe(EventSystemError, func(args ...interface{}) {
		if len(args) > 0 {
			handler.Handle(EventSystemError, args[0])
		}
	})
}

// RegisterPersistence 订阅识别事件并落库，便于事后排查识别链路
func RegisterPersistence(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("event persistence requires database handle")
	}

	return Subscribe(EventRecognitionCompleted, func(args ...interface{}) {
		if len(args) == 0 {
			return
		}
		data, ok := args[0].(RecognitionEventData)
		if !ok {
			return
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		record := &storage.RecognitionEvent{
			EventType: EventRecognitionCompleted,
			DeviceID:  data.DeviceID,
			AssetID:   data.AssetID,
			Data:      payload,
		}
		// 落库失败不影响主流程
		_ = db.Create(record).Error
	})
}
