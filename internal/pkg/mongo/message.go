package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message 消息明细文档。除 read 标记与删除外不可变。
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversationId"`
	SenderID       uint64             `bson:"sender_id" json:"senderId"` // 0 表示系统消息
	Content        string             `bson:"content" json:"content"`
	MsgType        string             `bson:"msg_type" json:"msgType"` // text / image
	Read           bool               `bson:"read" json:"read"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}

// IsSystem 系统消息 (自动回复、管理员广播)
func (m *Message) IsSystem() bool {
	return m.SenderID == 0
}
