package service

import (
	"Beacon/internal/api/config"
	"Beacon/internal/api/dto"
	"Beacon/internal/pkg/consts"
	"Beacon/internal/repository"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// PresenceService 在线/输入中等易失状态。持久镜像写 users 表，
// 实时状态走短 TTL 的 Redis 键：心跳一停，条目静默过期，无需显式下线。
type PresenceService interface {
	Connect(ctx context.Context, userID uint64, socketID string) error
	Disconnect(ctx context.Context, userID uint64) error
	Heartbeat(ctx context.Context, userID uint64) error
	Typing(ctx context.Context, conversationID string, userID uint64) error
	JoinGroup(ctx context.Context, conversationID string, userID uint64) error
	LeaveGroup(ctx context.Context, conversationID string, userID uint64) error
	IsOnline(ctx context.Context, userID uint64) (bool, error)
	RouteFor(ctx context.Context, userID uint64) (string, error)
}

type presenceServiceImpl struct {
	userRepo    repository.UserRepo
	store       EphemeralStore
	presenceTTL time.Duration
	typingTTL   time.Duration
}

func NewPresenceService(userRepo repository.UserRepo, store EphemeralStore, cfg config.ChatConfig) PresenceService {
	return &presenceServiceImpl{
		userRepo:    userRepo,
		store:       store,
		presenceTTL: time.Duration(cfg.PresenceTTLSec) * time.Second,
		typingTTL:   time.Duration(cfg.TypingTTLSec) * time.Second,
	}
}

// Connect 上线：落库在线镜像，写入带 TTL 的在线键与 socket 路由，广播 user_online
func (s *presenceServiceImpl) Connect(ctx context.Context, userID uint64, socketID string) error {
	if err := s.userRepo.SetOnline(ctx, userID, socketID); err != nil {
		return err
	}

	uid := strconv.FormatUint(userID, 10)
	if err := s.store.Set(ctx, consts.PresenceOnlineKey+uid, "1", s.presenceTTL); err != nil {
		return err
	}
	if err := s.store.Set(ctx, consts.SocketRouteKey+uid, socketID, s.presenceTTL); err != nil {
		return err
	}

	s.announce(ctx, "user_online", userID)
	return nil
}

// Disconnect 下线：last_seen 落库，清理易失键，广播 user_offline
func (s *presenceServiceImpl) Disconnect(ctx context.Context, userID uint64) error {
	if err := s.userRepo.SetOffline(ctx, userID, time.Now()); err != nil {
		return err
	}

	uid := strconv.FormatUint(userID, 10)
	if err := s.store.Del(ctx, consts.PresenceOnlineKey+uid); err != nil {
		return err
	}
	if err := s.store.Del(ctx, consts.SocketRouteKey+uid); err != nil {
		return err
	}

	s.announce(ctx, "user_offline", userID)
	return nil
}

// Heartbeat 刷新在线键与路由键的 TTL；丢一次无妨，TTL 内兜底
func (s *presenceServiceImpl) Heartbeat(ctx context.Context, userID uint64) error {
	uid := strconv.FormatUint(userID, 10)
	if err := s.store.Expire(ctx, consts.PresenceOnlineKey+uid, s.presenceTTL); err != nil {
		return err
	}
	return s.store.Expire(ctx, consts.SocketRouteKey+uid, s.presenceTTL)
}

// Typing 写入 (会话, 用户) 维度的短 TTL 键并向会话组广播一次，不落库，自动过期
func (s *presenceServiceImpl) Typing(ctx context.Context, conversationID string, userID uint64) error {
	uid := strconv.FormatUint(userID, 10)
	key := consts.TypingKey + conversationID + ":" + uid
	if err := s.store.Set(ctx, key, "1", s.typingTTL); err != nil {
		return err
	}

	payload, err := json.Marshal(&dto.WsEvent{
		Event: "typing",
		Data:  &dto.TypingEvent{ConversationID: conversationID, UserID: userID},
	})
	if err != nil {
		return err
	}
	return s.store.Publish(ctx, consts.ChatConversationChannel+conversationID, payload)
}

// JoinGroup 记录用户当前订阅了该会话组 (直达投递的判据)
func (s *presenceServiceImpl) JoinGroup(ctx context.Context, conversationID string, userID uint64) error {
	return s.store.SAdd(ctx, consts.ConvMembersKey+conversationID, strconv.FormatUint(userID, 10))
}

func (s *presenceServiceImpl) LeaveGroup(ctx context.Context, conversationID string, userID uint64) error {
	return s.store.SRem(ctx, consts.ConvMembersKey+conversationID, strconv.FormatUint(userID, 10))
}

func (s *presenceServiceImpl) IsOnline(ctx context.Context, userID uint64) (bool, error) {
	v, err := s.store.Get(ctx, consts.PresenceOnlineKey+strconv.FormatUint(userID, 10))
	return v != "", err
}

// RouteFor 查询用户当前的 socket 句柄，离线返回空串
func (s *presenceServiceImpl) RouteFor(ctx context.Context, userID uint64) (string, error) {
	return s.store.Get(ctx, consts.SocketRouteKey+strconv.FormatUint(userID, 10))
}

func (s *presenceServiceImpl) announce(ctx context.Context, event string, userID uint64) {
	payload, err := json.Marshal(&dto.WsEvent{Event: event, Data: &dto.PresenceEvent{UserID: userID}})
	if err != nil {
		return
	}
	if err = s.store.Publish(ctx, consts.ChatPresenceChannel, payload); err != nil {
		log.WarnContext(ctx, "presence 广播失败", "event", event, "userID", userID, "err", err)
	}
}
