package events

import (
	"context"
	"log/slog"

	"ForesightX/internal/agent"
	"ForesightX/pkg/logger"
)

// LogObserver writes every completed reply or action to the audit log.
type LogObserver struct {
	log *slog.Logger
}

var _ agent.Observer = (*LogObserver)(nil)

// NewLogObserver returns an observer bound to the audit logger.
func NewLogObserver() *LogObserver {
	return &LogObserver{log: logger.Audit()}
}

// Observe implements agent.Observer.
func (o *LogObserver) Observe(ctx context.Context, event agent.Event) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	o.log.Log(ctx, level, "agent event",
		slog.String("agent_id", event.AgentID),
		slog.String("room_id", event.RoomID),
		slog.String("message_id", event.MessageID),
		slog.String("action", event.Action),
		slog.Bool("success", event.Success),
		slog.Duration("duration", event.Duration),
	)
}
