package job

import (
	"Beacon/internal/api/config"
	"Beacon/internal/pkg/logger"
	"Beacon/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

// UnreadAuditJob 周期性对最近活跃的会话重算未读计数，修复并发窗口造成的漂移
type UnreadAuditJob struct {
	chatSvc service.ChatService
	window  time.Duration
}

func NewUnreadAuditJob(chatSvc service.ChatService) *UnreadAuditJob {
	window := time.Duration(config.Cfg.Chat.UnreadAuditWindow) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &UnreadAuditJob{
		chatSvc: chatSvc,
		window:  window,
	}
}

func (s *UnreadAuditJob) Run() {
	traceID := "job-unread-audit-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	since := time.Now().Add(-s.window)
	count, err := s.chatSvc.RecalibrateUnread(ctx, since)
	if err != nil {
		log.ErrorContext(ctx, "unread audit error", "err", err)
		return
	}

	log.InfoContext(ctx, "UnreadAuditJob finished", "conversation_count", count)
}
