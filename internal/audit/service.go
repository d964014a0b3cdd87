package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the append-only persistence contract for audit events.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call lifecycle and admin actions.
// Records are internal: patients and doctors never read them back.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ClinicID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records an admin action (including hidden roles).
func (s *Service) LogAdminAction(ctx context.Context, clinicID, actorUserID, actorRole, ip, message, metadata string) error {
	return s.Append(ctx, Event{
		ClinicID:    clinicID,
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogCall records a call lifecycle transition.
func (s *Service) LogCall(ctx context.Context, clinicID, actorUserID string, t EventType, callID, message string) error {
	return s.Append(ctx, Event{
		ClinicID:    clinicID,
		Type:        t,
		ActorUserID: actorUserID,
		CallID:      callID,
		Message:     message,
	})
}
