package service

import (
	"Beacon/internal/api/config"
	"Beacon/internal/api/dto"
	"Beacon/internal/pkg/consts"
	"Beacon/internal/model"
	"Beacon/internal/pkg/mongo"
	"Beacon/internal/pkg/processor"
	"Beacon/internal/repository"
	"context"
	log "log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// nonParticipantSender 占位的排除值：收件方是未指派管理员 (ID 0) 时，
// 不能用 0 做排除条件，否则会把系统消息 (sender 0) 排除在未读之外
const nonParticipantSender = ^uint64(0)

var imageExtensions = []string{".jpeg", ".jpg", ".png", ".gif", ".webp"}

// ChatService 会话目录、消息账本与未读计数的事务核心。
// 所有写路径先提交后广播：接收端看到的消息一定已经落库。
type ChatService interface {
	GetOrCreateConversation(ctx context.Context, userID uint64, appNameID int64) (*dto.ConversationDTO, error)
	SendMessage(ctx context.Context, conversationID string, senderID uint64, content, msgType string) (*dto.MessageDTO, error)
	GetMessages(ctx context.Context, conversationID string, requesterID uint64, page, limit int) ([]*dto.MessageDTO, error)
	DeleteMessage(ctx context.Context, messageID string, requesterID uint64) error
	BroadcastFromAdmin(ctx context.Context, adminID uint64, content string) (*dto.BroadcastResultDTO, error)
	ListAdminConversations(ctx context.Context, adminID uint64, page, limit int) ([]*dto.ConversationDTO, error)
	UpdateStatus(ctx context.Context, conversationID string, requesterID uint64, status string) error
	VerifyParticipant(ctx context.Context, conversationID string, userID uint64) error
	MarkMessageRead(ctx context.Context, conversationID, messageID string, readerID uint64) error
	RecalibrateUnread(ctx context.Context, since time.Time) (int, error)
	Close()
}

type chatServiceImpl struct {
	repo      mongo.ChatRepo
	userRepo  repository.UserRepo
	merchRepo repository.MerchantRepo
	bus       EphemeralStore
	cfg       config.ChatConfig

	wg       sync.WaitGroup
	stopChan chan struct{}
}

func NewChatService(
	repo mongo.ChatRepo,
	userRepo repository.UserRepo,
	merchRepo repository.MerchantRepo,
	bus EphemeralStore,
	cfg config.ChatConfig,
) ChatService {
	return &chatServiceImpl{
		repo:      repo,
		userRepo:  userRepo,
		merchRepo: merchRepo,
		bus:       bus,
		cfg:       cfg,
		stopChan:  make(chan struct{}),
	}
}

// GetOrCreateConversation 返回用户在租户内的唯一会话，没有则指派管理员并创建。
// 并发首次进线靠 (user_id, app_name_id) 唯一索引裁决：冲突方回读胜者。
func (s *chatServiceImpl) GetOrCreateConversation(ctx context.Context, userID uint64, appNameID int64) (*dto.ConversationDTO, error) {
	user, err := s.userRepo.GetUserById(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	conv, err := s.repo.GetConversationByUser(ctx, userID, appNameID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return s.toConversationDTO(ctx, conv)
	}

	if appNameID != consts.DefaultTenantID {
		merchant, err := s.merchRepo.GetByAppNameID(ctx, appNameID)
		if err != nil {
			return nil, err
		}
		if merchant == nil || merchant.Status != "active" {
			return nil, ErrTenantInactive
		}
	}

	admin, err := s.userRepo.FindAdminForTenant(ctx, appNameID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrNoAdminAvailable
	}

	conv = &mongo.Conversation{
		UserID:        userID,
		AdminID:       admin.ID,
		AppNameID:     appNameID,
		Status:        consts.ConvStatusActive,
		LastMessageAt: time.Now(),
	}
	if err = s.repo.CreateConversation(ctx, conv); err != nil {
		if !mongo.IsDuplicateKey(err) {
			return nil, err
		}
		// 竞争输了，回读胜出的那条
		conv, err = s.repo.GetConversationByUser(ctx, userID, appNameID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, ErrConversationConflict
		}
	}

	return s.toConversationDTO(ctx, conv)
}

// SendMessage 参与者向会话发送消息。插入、对方未读重算、last_message 更新
// 在同一个事务里提交，提交成功后才做实时分发。
func (s *chatServiceImpl) SendMessage(ctx context.Context, conversationID string, senderID uint64, content, msgType string) (*dto.MessageDTO, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	sender, err := s.userRepo.GetUserById(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, ErrUserNotFound
	}

	if !conv.IsParticipant(senderID) {
		return nil, ErrNotParticipant
	}
	if conv.AppNameID != consts.DefaultTenantID && sender.TenantID() != conv.AppNameID {
		return nil, ErrTenantMismatch
	}

	content, err = s.validateContent(content, msgType)
	if err != nil {
		return nil, err
	}

	recipientParty, recipientID := s.recipientOf(conv, senderID)
	msg, err := s.appendMessage(ctx, conv, senderID, content, msgType, recipientParty, recipientID)
	if err != nil {
		return nil, err
	}

	msgDTO := s.toMessageDTO(msg, toParticipantDTO(sender))
	s.fanOut(ctx, conv, msgDTO, recipientID)

	// 首条真实消息触发自动回复，严格等值判断避免重复触发
	if total, err := s.repo.CountMessages(ctx, conv.ID); err == nil && total == 1 {
		s.scheduleWelcome(conv)
	}

	return msgDTO, nil
}

// GetMessages 拉取分页消息 (按发送时间升序)。副作用：对方发来的未读消息
// 全部置为已读，请求方未读数清零，两者与读取在同一事务。
func (s *chatServiceImpl) GetMessages(ctx context.Context, conversationID string, requesterID uint64, page, limit int) ([]*dto.MessageDTO, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(requesterID) {
		return nil, ErrNotParticipant
	}

	party := s.partyOf(conv, requesterID)
	err = s.repo.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.MarkRead(txCtx, conv.ID, requesterID); err != nil {
			return err
		}
		return s.repo.SetUnread(txCtx, conv.ID, party, 0)
	})
	if err != nil {
		return nil, err
	}

	page, limit = s.normalizePage(page, limit)
	messages, err := s.repo.ListMessages(ctx, conv.ID, int64(page-1)*int64(limit), int64(limit))
	if err != nil {
		return nil, err
	}

	return s.resolveMessages(ctx, messages)
}

// DeleteMessage 删除消息。策略：仅管理员可删 (见 DESIGN.md)。
// 若删的是 last_message，事务内回指到上一条存活消息或置空，并重算双方未读。
func (s *chatServiceImpl) DeleteMessage(ctx context.Context, messageID string, requesterID uint64) error {
	requester, err := s.userRepo.GetUserById(ctx, requesterID)
	if err != nil {
		return err
	}
	if requester == nil {
		return ErrUserNotFound
	}
	if requester.Role != consts.RoleAdmin {
		return UnauthorizedError
	}

	msgID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrParamInvalid
	}
	msg, err := s.repo.GetMessage(ctx, msgID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}

	conv, err := s.repo.GetConversationByID(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if conv.AdminID != 0 && conv.AdminID != requesterID {
		return UnauthorizedError
	}
	if conv.AppNameID != consts.DefaultTenantID && requester.TenantID() != conv.AppNameID {
		return ErrTenantMismatch
	}

	return s.repo.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.DeleteMessage(txCtx, msgID); err != nil {
			return err
		}

		if conv.LastMessageID != nil && *conv.LastMessageID == msgID {
			latest, err := s.repo.LatestMessage(txCtx, conv.ID)
			if err != nil {
				return err
			}
			if latest != nil {
				id := latest.ID
				if err = s.repo.SetLastMessage(txCtx, conv.ID, &id, latest.CreatedAt); err != nil {
					return err
				}
			} else if err = s.repo.SetLastMessage(txCtx, conv.ID, nil, conv.CreatedAt); err != nil {
				return err
			}
		}

		// 被删的可能是未读消息，双方计数都重算一遍
		return s.recountBoth(txCtx, conv)
	})
}

// BroadcastFromAdmin 管理员向名下 (含本租户未指派) 的全部会话投递一条系统消息。
// 策略：逐会话尽力而为，单个失败不拖垮整批，失败项按会话上报 (见 DESIGN.md)。
func (s *chatServiceImpl) BroadcastFromAdmin(ctx context.Context, adminID uint64, content string) (*dto.BroadcastResultDTO, error) {
	admin, err := s.userRepo.GetUserById(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrUserNotFound
	}
	if admin.Role != consts.RoleAdmin {
		return nil, UnauthorizedError
	}

	content, err = s.validateContent(content, consts.MsgTypeText)
	if err != nil {
		return nil, err
	}

	targets, err := s.repo.ListBroadcastTargets(ctx, adminID, admin.TenantID())
	if err != nil {
		return nil, err
	}

	result := &dto.BroadcastResultDTO{Failed: map[string]string{}}
	for _, conv := range targets {
		msg, err := s.appendMessage(ctx, conv, consts.SystemSenderID, content, consts.MsgTypeText, mongo.PartyUser, conv.UserID)
		if err != nil {
			result.Failed[conv.ID.Hex()] = err.Error()
			log.WarnContext(ctx, "广播写入失败", "conversationID", conv.ID.Hex(), "err", err)
			continue
		}
		result.Sent++
		s.fanOut(ctx, conv, s.toMessageDTO(msg, nil), conv.UserID)
	}
	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	return result, nil
}

// ListAdminConversations 管理员会话列表，按最近活跃倒序分页
func (s *chatServiceImpl) ListAdminConversations(ctx context.Context, adminID uint64, page, limit int) ([]*dto.ConversationDTO, error) {
	admin, err := s.userRepo.GetUserById(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrUserNotFound
	}
	if admin.Role != consts.RoleAdmin {
		return nil, UnauthorizedError
	}

	page, limit = s.normalizePage(page, limit)
	list, err := s.repo.ListAdminConversations(ctx, adminID, admin.TenantID(), int64(page-1)*int64(limit), int64(limit))
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConversationDTO, 0, len(list))
	for _, conv := range list {
		d, err := s.toConversationDTO(ctx, conv)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

// UpdateStatus 会话状态迁移，仅会话归属的管理员可操作
func (s *chatServiceImpl) UpdateStatus(ctx context.Context, conversationID string, requesterID uint64, status string) error {
	switch status {
	case consts.ConvStatusActive, consts.ConvStatusPending, consts.ConvStatusResolved:
	default:
		return ErrStatusInvalid
	}

	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	requester, err := s.userRepo.GetUserById(ctx, requesterID)
	if err != nil {
		return err
	}
	if requester == nil {
		return ErrUserNotFound
	}
	if requester.Role != consts.RoleAdmin || (conv.AdminID != 0 && conv.AdminID != requesterID) {
		return UnauthorizedError
	}

	return s.repo.UpdateStatus(ctx, conv.ID, status)
}

// VerifyParticipant 供网关在订阅会话组之前做成员校验
func (s *chatServiceImpl) VerifyParticipant(ctx context.Context, conversationID string, userID uint64) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

// MarkMessageRead 单条已读回执：置位 read 并重算受其影响的未读数。
// 被标记的消息压在谁的计数上取决于发送者 (本人消息压对方，系统消息压双方)，
// 所以统一在同一事务里把双方计数都按账本重算，任何提交点上计数都精确。
func (s *chatServiceImpl) MarkMessageRead(ctx context.Context, conversationID, messageID string, readerID uint64) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(readerID) {
		return ErrNotParticipant
	}

	msgID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrParamInvalid
	}
	msg, err := s.repo.GetMessage(ctx, msgID)
	if err != nil {
		return err
	}
	if msg == nil || msg.ConversationID != conv.ID {
		return ErrMessageNotFound
	}

	return s.repo.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.MarkMessageRead(txCtx, msgID); err != nil {
			return err
		}
		return s.recountBoth(txCtx, conv)
	})
}

// RecalibrateUnread 对最近活跃的会话重算双方未读数，修复漂移。返回处理条数。
func (s *chatServiceImpl) RecalibrateUnread(ctx context.Context, since time.Time) (int, error) {
	list, err := s.repo.ListActiveSince(ctx, since)
	if err != nil {
		return 0, err
	}

	for _, conv := range list {
		c := conv
		err = s.repo.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.recountBoth(txCtx, c)
		})
		if err != nil {
			return 0, err
		}
	}
	return len(list), nil
}

// Close 等待在途的自动回复收尾
func (s *chatServiceImpl) Close() {
	close(s.stopChan)
	s.wg.Wait()
	log.Info("ChatService shut down gracefully")
}

// appendMessage 事务核心：插入消息 + 收件方未读精确重算 + last_message 更新，
// 三者同一事务提交，失败整体回滚
func (s *chatServiceImpl) appendMessage(ctx context.Context, conv *mongo.Conversation, senderID uint64, content, msgType, recipientParty string, recipientID uint64) (*mongo.Message, error) {
	msg := &mongo.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		MsgType:        msgType,
		CreatedAt:      time.Now(),
	}

	exclude := recipientID
	if exclude == consts.SystemSenderID {
		exclude = nonParticipantSender
	}

	err := s.repo.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.InsertMessage(txCtx, msg); err != nil {
			return err
		}
		unread, err := s.repo.CountUnread(txCtx, conv.ID, exclude)
		if err != nil {
			return err
		}
		if err = s.repo.SetUnread(txCtx, conv.ID, recipientParty, unread); err != nil {
			return err
		}
		id := msg.ID
		return s.repo.SetLastMessage(txCtx, conv.ID, &id, msg.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// scheduleWelcome 延迟注入一条系统欢迎消息，走同一事务路径
func (s *chatServiceImpl) scheduleWelcome(conv *mongo.Conversation) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-time.After(time.Duration(s.cfg.ResponderDelayMs) * time.Millisecond):
		case <-s.stopChan:
			return
		}

		ctx := context.Background()
		msg, err := s.appendMessage(ctx, conv, consts.SystemSenderID, s.cfg.WelcomeContent, consts.MsgTypeText, mongo.PartyAdmin, conv.AdminID)
		if err != nil {
			log.Error("自动回复写入失败", "conversationID", conv.ID.Hex(), "err", err)
			return
		}
		s.fanOut(ctx, conv, s.toMessageDTO(msg, nil), conv.AdminID)
	}()
}

// fanOut 提交后的实时分发：先发会话组频道；收件方不在组内时再直达其用户频道
func (s *chatServiceImpl) fanOut(ctx context.Context, conv *mongo.Conversation, msg *dto.MessageDTO, recipientID uint64) {
	payload, err := json.Marshal(&dto.WsEvent{Event: "receive_message", Data: msg})
	if err != nil {
		log.ErrorContext(ctx, "消息序列化失败", "messageID", msg.ID, "err", err)
		return
	}

	hex := conv.ID.Hex()
	if err = s.bus.Publish(ctx, consts.ChatConversationChannel+hex, payload); err != nil {
		log.WarnContext(ctx, "会话组分发失败", "conversationID", hex, "err", err)
	}

	if recipientID == 0 {
		return
	}
	uid := strconv.FormatUint(recipientID, 10)
	in, err := s.bus.SIsMember(ctx, consts.ConvMembersKey+hex, uid)
	if err != nil || in {
		return
	}
	if err = s.bus.Publish(ctx, consts.ChatUserChannel+uid, payload); err != nil {
		log.WarnContext(ctx, "直达分发失败", "userID", uid, "err", err)
	}
}

// validateContent 文本先规整再校验长度；图片校验扩展名白名单
func (s *chatServiceImpl) validateContent(content, msgType string) (string, error) {
	switch msgType {
	case consts.MsgTypeText:
		content = processor.NormalizeText(content)
		if n := utf8.RuneCountInString(content); n < 1 || n > s.cfg.MaxTextLength {
			return "", ErrMessageContent
		}
		return content, nil
	case consts.MsgTypeImage:
		lower := strings.ToLower(content)
		for _, ext := range imageExtensions {
			if strings.HasSuffix(lower, ext) {
				return content, nil
			}
		}
		return "", ErrImageContent
	default:
		return "", ErrMessageType
	}
}

func (s *chatServiceImpl) getConversation(ctx context.Context, conversationID string) (*mongo.Conversation, error) {
	id, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrParamInvalid
	}
	conv, err := s.repo.GetConversationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *chatServiceImpl) partyOf(conv *mongo.Conversation, userID uint64) string {
	if userID == conv.UserID {
		return mongo.PartyUser
	}
	return mongo.PartyAdmin
}

// recipientOf 返回收件方：发送者是用户则收件方为管理员，反之亦然
func (s *chatServiceImpl) recipientOf(conv *mongo.Conversation, senderID uint64) (string, uint64) {
	if senderID == conv.UserID {
		return mongo.PartyAdmin, conv.AdminID
	}
	return mongo.PartyUser, conv.UserID
}

// recountBoth 以账本为准重算双方未读数
func (s *chatServiceImpl) recountBoth(ctx context.Context, conv *mongo.Conversation) error {
	unreadUser, err := s.repo.CountUnread(ctx, conv.ID, conv.UserID)
	if err != nil {
		return err
	}
	if err = s.repo.SetUnread(ctx, conv.ID, mongo.PartyUser, unreadUser); err != nil {
		return err
	}

	exclude := conv.AdminID
	if exclude == 0 {
		exclude = nonParticipantSender
	}
	unreadAdmin, err := s.repo.CountUnread(ctx, conv.ID, exclude)
	if err != nil {
		return err
	}
	return s.repo.SetUnread(ctx, conv.ID, mongo.PartyAdmin, unreadAdmin)
}

func (s *chatServiceImpl) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return page, limit
}

// resolveMessages 批量回填发送者展示信息
func (s *chatServiceImpl) resolveMessages(ctx context.Context, messages []*mongo.Message) ([]*dto.MessageDTO, error) {
	idSet := make(map[uint64]struct{})
	for _, m := range messages {
		if m.SenderID != consts.SystemSenderID {
			idSet[m.SenderID] = struct{}{}
		}
	}
	ids := make([]uint64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	senders := make(map[uint64]*dto.ParticipantDTO, len(ids))
	if len(ids) > 0 {
		users, err := s.userRepo.GetUserByIds(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			senders[u.ID] = toParticipantDTO(u)
		}
	}

	res := make([]*dto.MessageDTO, 0, len(messages))
	for _, m := range messages {
		res = append(res, s.toMessageDTO(m, senders[m.SenderID]))
	}
	return res, nil
}

func (s *chatServiceImpl) toMessageDTO(m *mongo.Message, sender *dto.ParticipantDTO) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	d.ID = m.ID.Hex()
	d.ConversationID = m.ConversationID.Hex()
	d.Sender = sender
	return d
}

func (s *chatServiceImpl) toConversationDTO(ctx context.Context, conv *mongo.Conversation) (*dto.ConversationDTO, error) {
	d := &dto.ConversationDTO{}
	_ = copier.Copy(d, conv)
	d.ID = conv.ID.Hex()
	if conv.LastMessageID != nil {
		d.LastMessageID = conv.LastMessageID.Hex()
	}

	users, err := s.userRepo.GetUserByIds(ctx, conv.Participants())
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		p := toParticipantDTO(u)
		switch u.ID {
		case conv.UserID:
			d.User = p
		case conv.AdminID:
			d.Admin = p
		}
	}
	return d, nil
}

func toParticipantDTO(u *model.User) *dto.ParticipantDTO {
	p := &dto.ParticipantDTO{}
	_ = copier.Copy(p, u)
	return p
}
