package service

import (
	"Beacon/internal/model"
	chatmongo "Beacon/internal/pkg/mongo"
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
)

// fakeChatRepo 内存账本，语义对齐 Mongo 实现：nil 表示不存在，
// WithTransaction 直接串行执行 (单测不验证回滚)。
type fakeChatRepo struct {
	mu    sync.Mutex
	convs map[primitive.ObjectID]*chatmongo.Conversation
	msgs  []*chatmongo.Message

	createHook func(*chatmongo.Conversation) error
	insertHook func(*chatmongo.Message) error
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{convs: make(map[primitive.ObjectID]*chatmongo.Conversation)}
}

func duplicateKeyErr() error {
	return driver.WriteException{WriteErrors: []driver.WriteError{{Code: 11000}}}
}

func copyConv(c *chatmongo.Conversation) *chatmongo.Conversation {
	cp := *c
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		cp.LastMessageID = &id
	}
	return &cp
}

func copyMsg(m *chatmongo.Message) *chatmongo.Message {
	cp := *m
	return &cp
}

func (s *fakeChatRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeChatRepo) CreateConversation(ctx context.Context, conv *chatmongo.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createHook != nil {
		hook := s.createHook
		s.createHook = nil
		if err := hook(conv); err != nil {
			return err
		}
	}
	for _, c := range s.convs {
		if c.UserID == conv.UserID && c.AppNameID == conv.AppNameID {
			return duplicateKeyErr()
		}
	}
	now := time.Now()
	conv.ID = primitive.NewObjectID()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	s.convs[conv.ID] = copyConv(conv)
	return nil
}

func (s *fakeChatRepo) GetConversationByUser(ctx context.Context, userID uint64, appNameID int64) (*chatmongo.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.convs {
		if c.UserID == userID && c.AppNameID == appNameID {
			return copyConv(c), nil
		}
	}
	return nil, nil
}

func (s *fakeChatRepo) GetConversationByID(ctx context.Context, id primitive.ObjectID) (*chatmongo.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, nil
	}
	return copyConv(c), nil
}

func (s *fakeChatRepo) inScope(c *chatmongo.Conversation, adminID uint64, appNameID int64) bool {
	return c.AppNameID == appNameID && (c.AdminID == adminID || c.AdminID == 0)
}

func (s *fakeChatRepo) ListAdminConversations(ctx context.Context, adminID uint64, appNameID int64, skip, limit int64) ([]*chatmongo.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*chatmongo.Conversation
	for _, c := range s.convs {
		if s.inScope(c, adminID, appNameID) {
			list = append(list, copyConv(c))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	if skip >= int64(len(list)) {
		return nil, nil
	}
	list = list[skip:]
	if limit < int64(len(list)) {
		list = list[:limit]
	}
	return list, nil
}

func (s *fakeChatRepo) ListBroadcastTargets(ctx context.Context, adminID uint64, appNameID int64) ([]*chatmongo.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*chatmongo.Conversation
	for _, c := range s.convs {
		if s.inScope(c, adminID, appNameID) {
			list = append(list, copyConv(c))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID.Hex() < list[j].ID.Hex() })
	return list, nil
}

func (s *fakeChatRepo) ListActiveSince(ctx context.Context, since time.Time) ([]*chatmongo.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*chatmongo.Conversation
	for _, c := range s.convs {
		if !c.LastMessageAt.Before(since) {
			list = append(list, copyConv(c))
		}
	}
	return list, nil
}

func (s *fakeChatRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return driver.ErrNoDocuments
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (s *fakeChatRepo) SetUnread(ctx context.Context, id primitive.ObjectID, party string, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return driver.ErrNoDocuments
	}
	if party == chatmongo.PartyAdmin {
		c.UnreadAdmin = count
	} else {
		c.UnreadUser = count
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (s *fakeChatRepo) SetLastMessage(ctx context.Context, id primitive.ObjectID, lastID *primitive.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return driver.ErrNoDocuments
	}
	if lastID != nil {
		v := *lastID
		c.LastMessageID = &v
	} else {
		c.LastMessageID = nil
	}
	c.LastMessageAt = at
	c.UpdatedAt = time.Now()
	return nil
}

func (s *fakeChatRepo) InsertMessage(ctx context.Context, msg *chatmongo.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertHook != nil {
		if err := s.insertHook(msg); err != nil {
			return err
		}
	}
	msg.ID = primitive.NewObjectID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.msgs = append(s.msgs, copyMsg(msg))
	return nil
}

func (s *fakeChatRepo) GetMessage(ctx context.Context, id primitive.ObjectID) (*chatmongo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == id {
			return copyMsg(m), nil
		}
	}
	return nil, nil
}

func (s *fakeChatRepo) DeleteMessage(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs {
		if m.ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return nil
		}
	}
	return driver.ErrNoDocuments
}

func (s *fakeChatRepo) LatestMessage(ctx context.Context, convID primitive.ObjectID) (*chatmongo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *chatmongo.Message
	for _, m := range s.msgs {
		if m.ConversationID != convID {
			continue
		}
		if latest == nil || !m.CreatedAt.Before(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyMsg(latest), nil
}

func (s *fakeChatRepo) ListMessages(ctx context.Context, convID primitive.ObjectID, skip, limit int64) ([]*chatmongo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*chatmongo.Message
	for _, m := range s.msgs {
		if m.ConversationID == convID {
			list = append(list, copyMsg(m))
		}
	}
	if skip >= int64(len(list)) {
		return nil, nil
	}
	list = list[skip:]
	if limit < int64(len(list)) {
		list = list[:limit]
	}
	return list, nil
}

func (s *fakeChatRepo) CountMessages(ctx context.Context, convID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs {
		if m.ConversationID == convID {
			n++
		}
	}
	return n, nil
}

func (s *fakeChatRepo) CountUnread(ctx context.Context, convID primitive.ObjectID, excludeSender uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs {
		if m.ConversationID == convID && !m.Read && m.SenderID != excludeSender {
			n++
		}
	}
	return n, nil
}

func (s *fakeChatRepo) MarkRead(ctx context.Context, convID primitive.ObjectID, excludeSender uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs {
		if m.ConversationID == convID && !m.Read && m.SenderID != excludeSender {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *fakeChatRepo) MarkMessageRead(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == id {
			m.Read = true
			return nil
		}
	}
	return driver.ErrNoDocuments
}

// fakeStore 内存版 EphemeralStore，记录 TTL 与每次 Publish 供断言
type fakeStore struct {
	mu   sync.Mutex
	kv   map[string]string
	ttl  map[string]time.Duration
	sets map[string]map[string]struct{}
	pubs []pubRecord
}

type pubRecord struct {
	channel string
	payload []byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:   make(map[string]string),
		ttl:  make(map[string]time.Duration),
		sets: make(map[string]map[string]struct{}),
	}
}

func (s *fakeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	s.ttl[key] = ttl
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv[key], nil
}

func (s *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kv[key]; ok {
		s.ttl[key] = ttl
	}
	return nil
}

func (s *fakeStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	delete(s.ttl, key)
	return nil
}

func (s *fakeStore) SAdd(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[key] == nil {
		s.sets[key] = make(map[string]struct{})
	}
	s.sets[key][member] = struct{}{}
	return nil
}

func (s *fakeStore) SRem(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets[key], member)
	return nil
}

func (s *fakeStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *fakeStore) Publish(ctx context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pubs = append(s.pubs, pubRecord{channel: channel, payload: append([]byte(nil), payload...)})
	return nil
}

func (s *fakeStore) published(channel string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, p := range s.pubs {
		if p.channel == channel {
			out = append(out, p.payload)
		}
	}
	return out
}

// fakeUserRepo 内存身份表
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint64]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	s := &fakeUserRepo{users: make(map[uint64]*model.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserRepo) GetUserById(ctx context.Context, id uint64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserRepo) GetUserByIds(ctx context.Context, ids []uint64) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeUserRepo) FindAdminForTenant(ctx context.Context, appNameID int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.User
	for _, u := range s.users {
		if u.Role != "admin" || u.TenantID() != appNameID {
			continue
		}
		if best == nil || u.ID < best.ID {
			best = u
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *fakeUserRepo) SetOnline(ctx context.Context, id uint64, socketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Online = true
		sid := socketID
		u.SocketID = &sid
	}
	return nil
}

func (s *fakeUserRepo) SetOffline(ctx context.Context, id uint64, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Online = false
		u.SocketID = nil
		ls := lastSeen
		u.LastSeen = &ls
	}
	return nil
}

// fakeMerchantRepo 内存租户表
type fakeMerchantRepo struct {
	merchants map[int64]*model.Merchant
}

func newFakeMerchantRepo(merchants ...*model.Merchant) *fakeMerchantRepo {
	s := &fakeMerchantRepo{merchants: make(map[int64]*model.Merchant)}
	for _, m := range merchants {
		s.merchants[m.AppNameID] = m
	}
	return s
}

func (s *fakeMerchantRepo) GetByAppNameID(ctx context.Context, appNameID int64) (*model.Merchant, error) {
	m, ok := s.merchants[appNameID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}
