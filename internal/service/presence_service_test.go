package service

import (
	"Beacon/internal/api/config"
	"Beacon/internal/model"
	"Beacon/internal/pkg/consts"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresenceFixture() (*fakeUserRepo, *fakeStore, PresenceService) {
	users := newFakeUserRepo(&model.User{ID: 1, Name: "aung", Role: consts.RoleUser})
	store := newFakeStore()
	svc := NewPresenceService(users, store, config.ChatConfig{PresenceTTLSec: 60, TypingTTLSec: 5})
	return users, store, svc
}

func TestPresenceConnectDisconnect(t *testing.T) {
	users, store, svc := newPresenceFixture()
	ctx := context.Background()

	require.NoError(t, svc.Connect(ctx, 1, "sock-abc"))

	// 持久镜像
	u, err := users.GetUserById(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.Online)
	require.NotNil(t, u.SocketID)
	assert.Equal(t, "sock-abc", *u.SocketID)

	// 易失键带 TTL
	online, err := svc.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, 60*time.Second, store.ttl[consts.PresenceOnlineKey+"1"])

	route, err := svc.RouteFor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sock-abc", route)

	// 上线广播
	pubs := store.published(consts.ChatPresenceChannel)
	require.Len(t, pubs, 1)
	var evt struct {
		Event string `json:"event"`
		Data  struct {
			UserID uint64 `json:"user_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pubs[0], &evt))
	assert.Equal(t, "user_online", evt.Event)
	assert.Equal(t, uint64(1), evt.Data.UserID)

	require.NoError(t, svc.Disconnect(ctx, 1))
	u, err = users.GetUserById(ctx, 1)
	require.NoError(t, err)
	assert.False(t, u.Online)
	assert.Nil(t, u.SocketID)
	require.NotNil(t, u.LastSeen)

	online, err = svc.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)

	pubs = store.published(consts.ChatPresenceChannel)
	require.Len(t, pubs, 2)
	require.NoError(t, json.Unmarshal(pubs[1], &evt))
	assert.Equal(t, "user_offline", evt.Event)
}

func TestPresenceHeartbeat(t *testing.T) {
	_, store, svc := newPresenceFixture()
	ctx := context.Background()

	require.NoError(t, svc.Connect(ctx, 1, "sock-abc"))
	store.ttl[consts.PresenceOnlineKey+"1"] = time.Second

	require.NoError(t, svc.Heartbeat(ctx, 1))
	assert.Equal(t, 60*time.Second, store.ttl[consts.PresenceOnlineKey+"1"])
	assert.Equal(t, 60*time.Second, store.ttl[consts.SocketRouteKey+"1"])
}

func TestPresenceTyping(t *testing.T) {
	_, store, svc := newPresenceFixture()
	ctx := context.Background()

	require.NoError(t, svc.Typing(ctx, "conv123", 1))

	// 短 TTL 键 + 会话组广播，不落库
	assert.Equal(t, 5*time.Second, store.ttl[consts.TypingKey+"conv123:1"])
	pubs := store.published(consts.ChatConversationChannel + "conv123")
	require.Len(t, pubs, 1)

	var evt struct {
		Event string `json:"event"`
		Data  struct {
			ConversationID string `json:"conversation_id"`
			UserID         uint64 `json:"user_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pubs[0], &evt))
	assert.Equal(t, "typing", evt.Event)
	assert.Equal(t, "conv123", evt.Data.ConversationID)
	assert.Equal(t, uint64(1), evt.Data.UserID)
}

func TestPresenceGroupMembership(t *testing.T) {
	_, store, svc := newPresenceFixture()
	ctx := context.Background()

	require.NoError(t, svc.JoinGroup(ctx, "conv123", 1))
	in, err := store.SIsMember(ctx, consts.ConvMembersKey+"conv123", "1")
	require.NoError(t, err)
	assert.True(t, in)

	require.NoError(t, svc.LeaveGroup(ctx, "conv123", 1))
	in, err = store.SIsMember(ctx, consts.ConvMembersKey+"conv123", "1")
	require.NoError(t, err)
	assert.False(t, in)
}
