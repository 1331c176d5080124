package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	convCollection = "conversations"
	msgCollection  = "messages"
)

// 未读计数归属方
const (
	PartyUser  = "user"
	PartyAdmin = "admin"
)

// ChatRepo 会话与消息账本的存储原语。
// 需要多文档原子性的调用方通过 WithTransaction 把若干原语合并为一个提交单元。
type ChatRepo interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversationByUser(ctx context.Context, userID uint64, appNameID int64) (*Conversation, error)
	GetConversationByID(ctx context.Context, id primitive.ObjectID) (*Conversation, error)
	ListAdminConversations(ctx context.Context, adminID uint64, appNameID int64, skip, limit int64) ([]*Conversation, error)
	ListBroadcastTargets(ctx context.Context, adminID uint64, appNameID int64) ([]*Conversation, error)
	ListActiveSince(ctx context.Context, since time.Time) ([]*Conversation, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error
	SetUnread(ctx context.Context, id primitive.ObjectID, party string, count int64) error
	SetLastMessage(ctx context.Context, id primitive.ObjectID, lastID *primitive.ObjectID, at time.Time) error

	InsertMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id primitive.ObjectID) (*Message, error)
	DeleteMessage(ctx context.Context, id primitive.ObjectID) error
	LatestMessage(ctx context.Context, convID primitive.ObjectID) (*Message, error)
	ListMessages(ctx context.Context, convID primitive.ObjectID, skip, limit int64) ([]*Message, error)
	CountMessages(ctx context.Context, convID primitive.ObjectID) (int64, error)
	CountUnread(ctx context.Context, convID primitive.ObjectID, excludeSender uint64) (int64, error)
	MarkRead(ctx context.Context, convID primitive.ObjectID, excludeSender uint64) (int64, error)
	MarkMessageRead(ctx context.Context, id primitive.ObjectID) error
}

// IsDuplicateKey 唯一索引冲突 (并发建会话的裁决信号)
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(errors.Cause(err))
}

type chatRepoImpl struct {
	client *mongo.Client
	conv   *mongo.Collection
	msg    *mongo.Collection
}

func NewChatRepo(client *mongo.Client, db *mongo.Database) ChatRepo {
	return &chatRepoImpl{
		client: client,
		conv:   db.Collection(convCollection),
		msg:    db.Collection(msgCollection),
	}
}

// WithTransaction 在单个 Mongo 会话事务中执行 fn，fn 返回错误则整体回滚
func (s *chatRepoImpl) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *chatRepoImpl) CreateConversation(ctx context.Context, conv *Conversation) error {
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	res, err := s.conv.InsertOne(ctx, conv)
	if err != nil {
		return err
	}
	conv.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *chatRepoImpl) GetConversationByUser(ctx context.Context, userID uint64, appNameID int64) (*Conversation, error) {
	var conv Conversation
	err := s.conv.FindOne(ctx, bson.M{"user_id": userID, "app_name_id": appNameID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *chatRepoImpl) GetConversationByID(ctx context.Context, id primitive.ObjectID) (*Conversation, error) {
	var conv Conversation
	err := s.conv.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListAdminConversations 管理员视角的会话列表：自己名下的加上本租户未指派的，按最近活跃倒序
func (s *chatRepoImpl) ListAdminConversations(ctx context.Context, adminID uint64, appNameID int64, skip, limit int64) ([]*Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := s.conv.Find(ctx, adminScopeFilter(adminID, appNameID), opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*Conversation
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListBroadcastTargets 广播目标集合，与管理员会话列表同一口径，不分页
func (s *chatRepoImpl) ListBroadcastTargets(ctx context.Context, adminID uint64, appNameID int64) ([]*Conversation, error) {
	cursor, err := s.conv.Find(ctx, adminScopeFilter(adminID, appNameID))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*Conversation
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func adminScopeFilter(adminID uint64, appNameID int64) bson.M {
	return bson.M{
		"app_name_id": appNameID,
		"$or": bson.A{
			bson.M{"admin_id": adminID},
			bson.M{"admin_id": bson.M{"$in": bson.A{0, nil}}},
		},
	}
}

// ListActiveSince 最近有消息活动的会话 (未读校准任务用)
func (s *chatRepoImpl) ListActiveSince(ctx context.Context, since time.Time) ([]*Conversation, error) {
	cursor, err := s.conv.Find(ctx, bson.M{"last_message_at": bson.M{"$gte": since}})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*Conversation
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *chatRepoImpl) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	res, err := s.conv.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *chatRepoImpl) SetUnread(ctx context.Context, id primitive.ObjectID, party string, count int64) error {
	field := "unread_user"
	if party == PartyAdmin {
		field = "unread_admin"
	}
	_, err := s.conv.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{field: count, "updated_at": time.Now()},
	})
	return err
}

func (s *chatRepoImpl) SetLastMessage(ctx context.Context, id primitive.ObjectID, lastID *primitive.ObjectID, at time.Time) error {
	set := bson.M{"last_message_at": at, "updated_at": time.Now()}
	update := bson.M{"$set": set}
	if lastID != nil {
		set["last_message_id"] = *lastID
	} else {
		update["$unset"] = bson.M{"last_message_id": ""}
	}
	_, err := s.conv.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

func (s *chatRepoImpl) InsertMessage(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	res, err := s.msg.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	msg.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *chatRepoImpl) GetMessage(ctx context.Context, id primitive.ObjectID) (*Message, error) {
	var msg Message
	err := s.msg.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *chatRepoImpl) DeleteMessage(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.msg.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// LatestMessage 会话中最新的一条存活消息，没有则返回 nil
func (s *chatRepoImpl) LatestMessage(ctx context.Context, convID primitive.ObjectID) (*Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var msg Message
	err := s.msg.FindOne(ctx, bson.M{"conversation_id": convID}, opts).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages 按发送时间升序分页
func (s *chatRepoImpl) ListMessages(ctx context.Context, convID primitive.ObjectID, skip, limit int64) ([]*Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := s.msg.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *chatRepoImpl) CountMessages(ctx context.Context, convID primitive.ObjectID) (int64, error) {
	return s.msg.CountDocuments(ctx, bson.M{"conversation_id": convID})
}

// CountUnread 非 excludeSender 发出的未读消息总数，即对方视角的未读数
func (s *chatRepoImpl) CountUnread(ctx context.Context, convID primitive.ObjectID, excludeSender uint64) (int64, error) {
	return s.msg.CountDocuments(ctx, bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": excludeSender},
		"read":            false,
	})
}

// MarkRead 将非 excludeSender 发出的未读消息全部置为已读，返回改动条数
func (s *chatRepoImpl) MarkRead(ctx context.Context, convID primitive.ObjectID, excludeSender uint64) (int64, error) {
	res, err := s.msg.UpdateMany(ctx, bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": excludeSender},
		"read":            false,
	}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *chatRepoImpl) MarkMessageRead(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.msg.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
