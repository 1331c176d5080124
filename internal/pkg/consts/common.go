package consts

const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleBot       = "bot"
)

const (
	ConvStatusActive   = "active"
	ConvStatusPending  = "pending"
	ConvStatusResolved = "resolved"
)

const (
	MsgTypeText  = "text"
	MsgTypeImage = "image"
)

// SystemSenderID 系统消息的发送者占位 (对应 sender = null)
const SystemSenderID uint64 = 0

// DefaultTenantID 未绑定商户的默认租户
const DefaultTenantID int64 = 0
