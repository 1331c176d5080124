package dto

import "time"

// SendMessageReq 发送消息请求体 (发送者身份取自鉴权上下文，不在请求体内)
type SendMessageReq struct {
	Content string `json:"content" binding:"required"`
	MsgType string `json:"type" binding:"required,oneof=text image"`
}

// BroadcastReq 管理员广播请求体
type BroadcastReq struct {
	Content string `json:"content" binding:"required"`
}

// UpdateStatusReq 会话状态迁移请求体
type UpdateStatusReq struct {
	Status string `json:"status" binding:"required,oneof=active pending resolved"`
}

// ParticipantDTO 参与者展示信息
type ParticipantDTO struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Online bool   `json:"online"`
}

// MessageDTO 消息明细响应，系统消息 Sender 为空
type MessageDTO struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Sender         *ParticipantDTO `json:"sender"`
	Content        string          `json:"content"`
	MsgType        string          `json:"type"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ConversationDTO 会话响应
type ConversationDTO struct {
	ID            string          `json:"id"`
	User          *ParticipantDTO `json:"user"`
	Admin         *ParticipantDTO `json:"admin"`
	AppNameID     int64           `json:"app_name_id"`
	Status        string          `json:"status"`
	UnreadUser    int64           `json:"unread_user"`
	UnreadAdmin   int64           `json:"unread_admin"`
	LastMessageID string          `json:"last_message_id,omitempty"`
	LastMessageAt time.Time       `json:"last_message_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BroadcastResultDTO 广播结果：逐会话尽力而为，失败单独上报
type BroadcastResultDTO struct {
	Sent   int               `json:"sent"`
	Failed map[string]string `json:"failed,omitempty"` // conversationID -> 原因
}

// WsEvent 长连接事件信封 (入站与出站共用)
type WsEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// JoinConversationEvent join_conversation 负载
type JoinConversationEvent struct {
	ConversationID string `json:"conversation_id"`
}

// TypingEvent typing 负载 (出站时带 user_id)
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         uint64 `json:"user_id,omitempty"`
}

// MarkReadEvent mark_read 负载
type MarkReadEvent struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// WsSendMessageEvent send_message 负载 (sender 永远取连接身份)
type WsSendMessageEvent struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	MsgType        string `json:"type"`
}

// PresenceEvent user_online / user_offline 负载
type PresenceEvent struct {
	UserID uint64 `json:"user_id"`
}
