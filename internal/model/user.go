package model

import "time"

// User 聊天参与者：终端用户、租户管理员、bot 与开发者共用一张表
type User struct {
	ID        uint64  `gorm:"primaryKey"`
	Name      string  `gorm:"type:varchar(50);uniqueIndex:idx_name"`
	Phone     *string `gorm:"type:varchar(30);uniqueIndex:idx_phone"`
	Password  *string `gorm:"type:varchar(255)"`
	Role      string  `gorm:"type:varchar(20);default:'user';index"` // user / admin / developer / bot
	AppNameID *int64  `gorm:"index"`                                 // 所属租户，NULL 表示默认租户

	// 在线状态的持久镜像，易失状态以 Redis 为准
	Online   bool       `gorm:"type:tinyint(1);default:0"`
	SocketID *string    `gorm:"type:varchar(64)"`
	LastSeen *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

// TenantID 统一取租户标识，NULL 归一为默认租户 0
func (u *User) TenantID() int64 {
	if u.AppNameID == nil {
		return 0
	}
	return *u.AppNameID
}
