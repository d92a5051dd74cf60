package eventbus

// 事件类型定义
const (
	// 识别相关事件
	EventRecognitionStarted   = "recognition:started"
	EventRecognitionCompleted = "recognition:completed"

	// 视觉问答相关事件
	EventVisionAnswered = "vision:answered"
	EventVisionFailed   = "vision:failed"

	// 系统事件
	EventSystemError = "system:error"
	EventSystemInfo  = "system:info"
)

// 事件数据结构
type RecognitionEventData struct {
	DeviceID    string `json:"device_id"`
	AssetID     string `json:"asset_id,omitempty"`
	Success     bool   `json:"success"`
	PeopleCount int    `json:"people_count"`
	Message     string `json:"message,omitempty"`
}

type VisionEventData struct {
	DeviceID string `json:"device_id"`
	ClientID string `json:"client_id,omitempty"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Error    string `json:"error,omitempty"`
}

type SystemEventData struct {
	Level   string      `json:"level"` // error, warn, info
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
