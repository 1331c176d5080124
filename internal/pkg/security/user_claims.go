package security

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserClaims 连接握手与请求鉴权共用的身份上下文。
// 身份与角色在签发时绑定，事件处理过程中不再信任客户端携带的身份字段。
type UserClaims struct {
	UserID    uint64 `json:"user_id"`
	Role      string `json:"role"`
	AppNameID int64  `json:"app_name_id"`
	jwt.RegisteredClaims
}
