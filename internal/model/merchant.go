package model

import "time"

// Merchant 租户(商户)记录，本服务只读：记录的增删改归集成方
type Merchant struct {
	ID           uint64 `gorm:"primaryKey"`
	Name         string `gorm:"type:varchar(100);uniqueIndex:idx_merchant_name"`
	AppNameID    int64  `gorm:"uniqueIndex:idx_app_name_id"`
	AppSecretKey string `gorm:"type:varchar(64)"`
	Status       string `gorm:"type:varchar(20);default:'active'"` // active / inactive
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Merchant) TableName() string {
	return "merchants"
}
