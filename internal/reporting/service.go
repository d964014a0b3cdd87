package reporting

import (
	"context"
	"errors"
	"time"

	"telehealth-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce clinic filtering.
// - Call history is insert-only, so aggregates never see a record change.
//
// calls.MemoryRepo and calls.PostgresRepo both satisfy it.
type Repository interface {
	ListByClinic(ctx context.Context, clinicID string, from, to time.Time) ([]calls.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.ClinicID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListByClinic(ctx, req.ClinicID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		ClinicID:      req.ClinicID,
		ParticipantID: req.ParticipantID,
		EndReasons:    map[calls.EndReason]int{},
	}
	for _, r := range rows {
		if r.ClinicID != req.ClinicID {
			// never trust the repository with isolation alone
			continue
		}
		if req.ParticipantID != "" && r.CallerID != req.ParticipantID && r.CalleeID != req.ParticipantID {
			continue
		}
		out.TotalCalls++
		out.EndReasons[r.EndReason]++
		if r.Kind == calls.KindVideo {
			out.VideoCalls++
		} else {
			out.VoiceCalls++
		}
		switch r.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
			out.TotalDurationSeconds += r.DurationSeconds
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusRejected:
			out.RejectedCalls++
		case calls.StatusCanceled:
			out.CanceledCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.CompletedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
