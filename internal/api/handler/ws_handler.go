package handler

import (
	"Beacon/internal/api/config"
	"Beacon/internal/api/dto"
	"Beacon/internal/pkg/consts"
	"Beacon/internal/pkg/redis"
	"Beacon/internal/pkg/response"
	"Beacon/internal/pkg/security"
	"Beacon/internal/service"
	"context"
	log "log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	chatSvc     service.ChatService
	presenceSvc service.PresenceService
}

func NewWsHandler(chatSvc service.ChatService, presenceSvc service.PresenceService) *WsHandler {
	return &WsHandler{chatSvc: chatSvc, presenceSvc: presenceSvc}
}

// wsSession 单条长连接的可变状态。joined 记录已订阅的会话组，断开时统一退组。
type wsSession struct {
	userID uint64
	connID string

	mu     sync.Mutex
	joined map[string]struct{}
}

// Connect 长连接入口。握手前完成鉴权，随后订阅本人频道与 presence 频道；
// 会话组频道按 join_conversation 事件动态订阅，订阅前做成员校验。
func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权先于升级，未验身份不开连接
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	sess := &wsSession{
		userID: userID,
		connID: uuid.New().String(),
		joined: make(map[string]struct{}),
	}

	ctx := context.Background()
	if err = s.presenceSvc.Connect(ctx, userID, sess.connID); err != nil {
		log.Error("上线登记失败", "userID", userID, "err", err)
		return
	}

	// 本人直达频道 + 全局 presence 频道；会话组频道随 join 动态加入
	uid := strconv.FormatUint(userID, 10)
	pubsub := redis.Subscribe(ctx, consts.ChatUserChannel+uid, consts.ChatPresenceChannel)

	defer func() {
		_ = pubsub.Close()
		s.teardown(ctx, sess)
	}()

	log.Info("用户 WS 连接已建立", "userID", userID, "connID", sess.connID)

	stopChan := make(chan struct{})
	outCh := make(chan []byte, 16)

	// 读循环：解析入站事件并分发，出错即断开
	go func() {
		defer close(stopChan)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.dispatch(ctx, sess, pubsub, raw, outCh)
		}
	}()

	heartbeat := time.NewTicker(time.Duration(config.Cfg.Chat.HeartbeatSec) * time.Second)
	defer heartbeat.Stop()

	// 写循环：Redis 订阅、本地回执、心跳续期三路合流
	redisCh := pubsub.Channel()
	for {
		select {
		case msg := <-redisCh:
			payload := []byte(msg.Payload)
			if !shouldForward(sess, payload) {
				continue
			}
			if err := s.write(conn, payload); err != nil {
				log.Error("WS 推送失败", "userID", userID, "err", err)
				return
			}
		case payload := <-outCh:
			if err := s.write(conn, payload); err != nil {
				log.Error("WS 回执失败", "userID", userID, "err", err)
				return
			}
		case <-heartbeat.C:
			if err := s.presenceSvc.Heartbeat(ctx, userID); err != nil {
				log.Warn("心跳续期失败", "userID", userID, "err", err)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stopChan:
			log.Info("用户 WS 连接已断开", "userID", userID, "connID", sess.connID)
			return
		}
	}
}

// dispatch 入站事件路由。身份一律取连接绑定的 userID，不信任事件负载里的身份。
func (s *WsHandler) dispatch(ctx context.Context, sess *wsSession, pubsub *goredis.PubSub, raw []byte, outCh chan<- []byte) {
	var evt dto.WsEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		s.replyErr(outCh, "", service.ErrParamInvalid)
		return
	}

	switch evt.Event {
	case "join_conversation":
		var payload dto.JoinConversationEvent
		if err := bindData(evt.Data, &payload); err != nil {
			s.replyErr(outCh, evt.Event, service.ErrParamInvalid)
			return
		}
		if err := s.join(ctx, sess, pubsub, payload.ConversationID); err != nil {
			s.replyErr(outCh, evt.Event, err)
		}

	case "leave_conversation":
		var payload dto.JoinConversationEvent
		if err := bindData(evt.Data, &payload); err != nil {
			s.replyErr(outCh, evt.Event, service.ErrParamInvalid)
			return
		}
		s.leave(ctx, sess, pubsub, payload.ConversationID)

	case "send_message":
		var payload dto.WsSendMessageEvent
		if err := bindData(evt.Data, &payload); err != nil {
			s.replyErr(outCh, evt.Event, service.ErrParamInvalid)
			return
		}
		if _, err := s.chatSvc.SendMessage(ctx, payload.ConversationID, sess.userID, payload.Content, payload.MsgType); err != nil {
			s.replyErr(outCh, evt.Event, err)
		}

	case "typing":
		var payload dto.TypingEvent
		if err := bindData(evt.Data, &payload); err != nil {
			return
		}
		if err := s.chatSvc.VerifyParticipant(ctx, payload.ConversationID, sess.userID); err != nil {
			return
		}
		if err := s.presenceSvc.Typing(ctx, payload.ConversationID, sess.userID); err != nil {
			log.Warn("typing 广播失败", "userID", sess.userID, "err", err)
		}

	case "mark_read":
		var payload dto.MarkReadEvent
		if err := bindData(evt.Data, &payload); err != nil {
			s.replyErr(outCh, evt.Event, service.ErrParamInvalid)
			return
		}
		if err := s.chatSvc.MarkMessageRead(ctx, payload.ConversationID, payload.MessageID, sess.userID); err != nil {
			s.replyErr(outCh, evt.Event, err)
		}

	case "heartbeat":
		if err := s.presenceSvc.Heartbeat(ctx, sess.userID); err != nil {
			log.Warn("心跳续期失败", "userID", sess.userID, "err", err)
		}

	default:
		s.replyErr(outCh, evt.Event, service.ErrParamInvalid)
	}
}

// join 成员校验通过后才订阅会话组频道并登记组成员
func (s *WsHandler) join(ctx context.Context, sess *wsSession, pubsub *goredis.PubSub, conversationID string) error {
	if err := s.chatSvc.VerifyParticipant(ctx, conversationID, sess.userID); err != nil {
		return err
	}
	if err := pubsub.Subscribe(ctx, consts.ChatConversationChannel+conversationID); err != nil {
		return err
	}
	if err := s.presenceSvc.JoinGroup(ctx, conversationID, sess.userID); err != nil {
		return err
	}

	sess.mu.Lock()
	sess.joined[conversationID] = struct{}{}
	sess.mu.Unlock()
	return nil
}

func (s *WsHandler) leave(ctx context.Context, sess *wsSession, pubsub *goredis.PubSub, conversationID string) {
	sess.mu.Lock()
	delete(sess.joined, conversationID)
	sess.mu.Unlock()

	_ = pubsub.Unsubscribe(ctx, consts.ChatConversationChannel+conversationID)
	if err := s.presenceSvc.LeaveGroup(ctx, conversationID, sess.userID); err != nil {
		log.Warn("退组失败", "userID", sess.userID, "conversationID", conversationID, "err", err)
	}
}

// teardown 断开收尾：清空组成员登记并下线
func (s *WsHandler) teardown(ctx context.Context, sess *wsSession) {
	sess.mu.Lock()
	joined := make([]string, 0, len(sess.joined))
	for id := range sess.joined {
		joined = append(joined, id)
	}
	sess.joined = make(map[string]struct{})
	sess.mu.Unlock()

	for _, id := range joined {
		if err := s.presenceSvc.LeaveGroup(ctx, id, sess.userID); err != nil {
			log.Warn("退组失败", "userID", sess.userID, "conversationID", id, "err", err)
		}
	}
	if err := s.presenceSvc.Disconnect(ctx, sess.userID); err != nil {
		log.Error("下线登记失败", "userID", sess.userID, "err", err)
	}
}

func (s *WsHandler) write(conn *websocket.Conn, payload []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// replyErr 错误只回给当前连接，不进总线
func (s *WsHandler) replyErr(outCh chan<- []byte, event string, err error) {
	payload, mErr := json.Marshal(&dto.WsEvent{
		Event: "error",
		Data:  gin.H{"source": event, "message": err.Error()},
	})
	if mErr != nil {
		return
	}
	select {
	case outCh <- payload:
	default:
	}
}

// shouldForward 会话组频道回流的事件里过滤掉本人的 typing，输入中提示只给对方
func shouldForward(sess *wsSession, payload []byte) bool {
	var evt struct {
		Event string          `json:"event"`
		Data  dto.TypingEvent `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return true
	}
	return evt.Event != "typing" || evt.Data.UserID != sess.userID
}

// bindData 事件负载二次解码
func bindData(data interface{}, target interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
