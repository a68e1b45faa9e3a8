package events

import (
	"context"

	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

// LogNotifier writes one line per event. Field values are never logged.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("module", "events")}
}

func (n *LogNotifier) emit(ctx context.Context, action Action, id models.Identity, obj *models.Object) {
	n.log.Info(ctx, "object event",
		"action", string(action),
		"context", id.ContextID,
		"user", id.UserID,
		"folder", obj.FolderID,
		"object", obj.ID,
	)
}

func (n *LogNotifier) Create(ctx context.Context, id models.Identity, obj *models.Object) error {
	n.emit(ctx, ActionCreate, id, obj)
	return nil
}

func (n *LogNotifier) Modify(ctx context.Context, id models.Identity, _, after *models.Object) error {
	n.emit(ctx, ActionModify, id, after)
	return nil
}

func (n *LogNotifier) Delete(ctx context.Context, id models.Identity, obj *models.Object) error {
	n.emit(ctx, ActionDelete, id, obj)
	return nil
}
