package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation 会话文档：一个 (用户, 租户) 对至多一条，永不删除，只做状态迁移
type Conversation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    uint64             `bson:"user_id" json:"userId"`
	AdminID   uint64             `bson:"admin_id" json:"adminId"`      // 0 表示未指派
	AppNameID int64              `bson:"app_name_id" json:"appNameId"`      // 0 表示默认租户
	Status    string             `bson:"status" json:"status"`              // active / pending / resolved

	UnreadUser  int64 `bson:"unread_user" json:"unreadUser"`
	UnreadAdmin int64 `bson:"unread_admin" json:"unreadAdmin"`

	// 弱引用：仅存标识，按需回查，避免与消息形成环
	LastMessageID *primitive.ObjectID `bson:"last_message_id,omitempty" json:"lastMessageId,omitempty"`
	LastMessageAt time.Time           `bson:"last_message_at" json:"lastMessageAt"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Participants 返回会话双方的用户 ID (未指派管理员时只有一方)
func (c *Conversation) Participants() []uint64 {
	ids := []uint64{c.UserID}
	if c.AdminID != 0 {
		ids = append(ids, c.AdminID)
	}
	return ids
}

// IsParticipant 判断用户是否是会话参与方
func (c *Conversation) IsParticipant(userID uint64) bool {
	return userID == c.UserID || (c.AdminID != 0 && userID == c.AdminID)
}
