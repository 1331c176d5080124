package repository

import (
	"Beacon/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type UserRepo interface {
	GetUserById(ctx context.Context, id uint64) (*model.User, error)
	GetUserByIds(ctx context.Context, ids []uint64) ([]*model.User, error)
	FindAdminForTenant(ctx context.Context, appNameID int64) (*model.User, error)
	SetOnline(ctx context.Context, id uint64, socketID string) error
	SetOffline(ctx context.Context, id uint64, lastSeen time.Time) error
}

type UserRepoImpl struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &UserRepoImpl{db: db}
}

func (s *UserRepoImpl) GetUserById(ctx context.Context, id uint64) (*model.User, error) {
	user := &model.User{}
	result := s.db.WithContext(ctx).First(user, id)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return user, nil
}

func (s *UserRepoImpl) GetUserByIds(ctx context.Context, ids []uint64) ([]*model.User, error) {
	users := make([]*model.User, 0)
	result := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}
	return users, nil
}

// FindAdminForTenant 在租户内挑选一名管理员。appNameID 为 0 时取默认租户
// (app_name_id IS NULL) 的管理员。没有可用管理员返回 nil。
func (s *UserRepoImpl) FindAdminForTenant(ctx context.Context, appNameID int64) (*model.User, error) {
	user := &model.User{}
	query := s.db.WithContext(ctx).Where("role = ?", "admin")
	if appNameID == 0 {
		query = query.Where("app_name_id IS NULL")
	} else {
		query = query.Where("app_name_id = ?", appNameID)
	}

	result := query.First(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return user, nil
}

// SetOnline 连接建立时落库的在线镜像
func (s *UserRepoImpl) SetOnline(ctx context.Context, id uint64, socketID string) error {
	return s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"online":    true,
			"socket_id": socketID,
		}).Error
}

// SetOffline 断开时写入 last_seen 并清除 socket 句柄
func (s *UserRepoImpl) SetOffline(ctx context.Context, id uint64, lastSeen time.Time) error {
	return s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"online":    false,
			"socket_id": nil,
			"last_seen": lastSeen,
		}).Error
}
