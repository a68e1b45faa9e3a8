// Package events delivers object change notifications. The core calls a
// Notifier after a mutation commits; what happens to the event is up to the
// implementation.
package events

import (
	"context"
	"time"

	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Notifier receives committed mutations.
type Notifier interface {
	Create(ctx context.Context, id models.Identity, obj *models.Object) error
	Modify(ctx context.Context, id models.Identity, before, after *models.Object) error
	Delete(ctx context.Context, id models.Identity, obj *models.Object) error
}

// Event is the serialized form of one notification.
type Event struct {
	ID         string          `json:"id"`
	Action     Action          `json:"action"`
	ContextID  int             `json:"context_id"`
	UserID     int             `json:"user_id"`
	ObjectID   int             `json:"object_id"`
	FolderID   int             `json:"folder_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Before     *ObjectSnapshot `json:"before,omitempty"`
	After      *ObjectSnapshot `json:"after,omitempty"`
}

type ObjectSnapshot struct {
	ID             int                     `json:"id"`
	FolderID       int                     `json:"folder_id"`
	CreatedBy      int                     `json:"created_by"`
	ModifiedBy     int                     `json:"modified_by"`
	CreatedAt      time.Time               `json:"created_at"`
	LastModified   time.Time               `json:"last_modified"`
	InternalUserID int                     `json:"internal_user_id,omitempty"`
	Values         map[models.Field]string `json:"values,omitempty"`
	Attributes     models.Attributes       `json:"attributes,omitempty"`
}

func snapshot(o *models.Object) *ObjectSnapshot {
	if o == nil {
		return nil
	}
	c := o.Clone()
	return &ObjectSnapshot{
		ID:             c.ID,
		FolderID:       c.FolderID,
		CreatedBy:      c.CreatedBy,
		ModifiedBy:     c.ModifiedBy,
		CreatedAt:      c.CreatedAt,
		LastModified:   c.LastModified,
		InternalUserID: c.InternalUserID,
		Values:         c.Values,
		Attributes:     c.Attributes,
	}
}

// NewEvent builds an event; the subject is after, or before for deletions.
func NewEvent(action Action, id models.Identity, before, after *models.Object, now time.Time) *Event {
	subject := after
	if subject == nil {
		subject = before
	}
	e := &Event{
		ID:         uuid.NewString(),
		Action:     action,
		ContextID:  id.ContextID,
		UserID:     id.UserID,
		OccurredAt: now.UTC(),
		Before:     snapshot(before),
		After:      snapshot(after),
	}
	if subject != nil {
		e.ObjectID = subject.ID
		e.FolderID = subject.FolderID
	}
	return e
}

// Multi fans an event out to every notifier. All of them are called; their
// errors are combined.
type Multi []Notifier

func (m Multi) Create(ctx context.Context, id models.Identity, obj *models.Object) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Create(ctx, id, obj))
	}
	return err
}

func (m Multi) Modify(ctx context.Context, id models.Identity, before, after *models.Object) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Modify(ctx, id, before, after))
	}
	return err
}

func (m Multi) Delete(ctx context.Context, id models.Identity, obj *models.Object) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Delete(ctx, id, obj))
	}
	return err
}
