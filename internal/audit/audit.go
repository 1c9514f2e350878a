package audit

import (
	"context"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Audit actions.
const (
	ActionCreateRoom    = "room.create"
	ActionUpdateRoom    = "room.update"
	ActionDeleteRoom    = "room.delete"
	ActionJoinRoom      = "room.join"
	ActionLeaveRoom     = "room.leave"
	ActionDeleteMessage = "message.delete"
	ActionMarkRead      = "message.mark_read"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID, roomID int64, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Int64(log.FieldUserID, userID).
		Int64(log.FieldRoomID, roomID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID, roomID int64, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Int64(log.FieldUserID, userID).
		Int64(log.FieldRoomID, roomID).
		Str(FieldDetail, detail).
		Msg(msg)
}
