package providers

// Message 对话消息
type Message struct {
	Role    string `json:"role"`    // 系统角色: system, user, assistant
	Content string `json:"content"` // 消息内容
	Name    string `json:"name,omitempty"`
}
