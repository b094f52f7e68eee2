package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/settings"
	"github.com/ensemblehq/chairfill/internal/store"
)

// SweepReport summarizes one sweep run over a tenant. Reminder and timeout
// outcomes are reported independently so one side's failures never mask the
// other's progress.
type SweepReport struct {
	RemindersProcessed int      `json:"remindersProcessed"`
	TimeoutsProcessed  int      `json:"timeoutsProcessed"`
	Errors             []string `json:"errors"`
}

// Sweep runs the reminder sweep and the timeout sweep over one tenant's
// store. It is driven by an external schedule trigger and is safe to invoke
// on overlapping schedules: reminders are bounded by the communication log
// claim and timeouts by conditional status transitions.
func (s *StaffingService) Sweep(ctx context.Context, tenantID string, st *store.Store) *SweepReport {
	report := &SweepReport{Errors: []string{}}
	now := s.now()

	cfg, err := settings.Load(ctx, st, s.defaultWindow)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("settings: %v", err))
		s.metrics.SweepError()
		return report
	}

	tokens, err := st.ListPendingTokens(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("pending requests: %v", err))
		s.metrics.SweepError()
		return report
	}

	s.sweepReminders(ctx, st, tokens, cfg.ReminderPercentage, now, report)
	s.sweepTimeouts(ctx, tenantID, st, tokens, now, report)
	return report
}

// sweepReminders emits at most one reminder per pending request once the
// configured percentage of its response window has elapsed. The log entry is
// claimed before the send, so a sweep interrupted mid-run never double-sends
// on its next invocation.
func (s *StaffingService) sweepReminders(ctx context.Context, st *store.Store, tokens []*model.ResponseToken, reminderPct int, now time.Time, report *SweepReport) {
	for _, token := range tokens {
		request := token.Request
		if request == nil || request.IsTerminal() {
			continue
		}
		// Past-deadline requests belong to the timeout sweep.
		if !now.Before(token.ExpiresAt) {
			continue
		}
		if !reminderDue(request.SentAt, token.ExpiresAt, reminderPct, now) {
			continue
		}

		claimed, err := st.ClaimCommunication(ctx, request.ID, model.CommunicationKindReminder, now)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("reminder claim %s: %v", request.ID, err))
			s.metrics.SweepError()
			continue
		}
		if !claimed {
			continue
		}

		musician, err := st.GetMusicianByID(ctx, request.MusicianID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("reminder musician %s: %v", request.ID, err))
			s.metrics.SweepError()
			continue
		}
		if err := s.notifier.SendReminder(ctx, musician, request, token.ExpiresAt); err != nil {
			// The claim stands: one reminder per request means one send
			// attempt, not retry-until-delivered.
			report.Errors = append(report.Errors, fmt.Sprintf("reminder send %s: %v", request.ID, err))
			s.metrics.SweepError()
			continue
		}

		s.metrics.ReminderSent()
		report.RemindersProcessed++
		s.log.Infow("reminder sent", "request", request.ID, "musician", request.MusicianID)
	}
}

// sweepTimeouts transitions every pending request past its deadline to
// timeout and backfills each affected need once.
func (s *StaffingService) sweepTimeouts(ctx context.Context, tenantID string, st *store.Store, tokens []*model.ResponseToken, now time.Time, report *SweepReport) {
	needsToBackfill := make(map[string]bool)

	for _, token := range tokens {
		request := token.Request
		if request == nil || request.IsTerminal() {
			continue
		}
		if !now.After(token.ExpiresAt) {
			continue
		}

		if err := st.TimeoutRequest(ctx, request.ID, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// A response won the race; the request is terminal and this
				// sweep must not touch it.
				continue
			}
			report.Errors = append(report.Errors, fmt.Sprintf("timeout %s: %v", request.ID, err))
			s.metrics.SweepError()
			continue
		}

		s.metrics.TimeoutEnforced()
		report.TimeoutsProcessed++
		needsToBackfill[request.NeedID] = true
		s.log.Infow("request timed out", "request", request.ID, "need", request.NeedID)
	}

	for needID := range needsToBackfill {
		if _, err := s.backfill(ctx, tenantID, st, needID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("backfill %s: %v", needID, err))
			s.metrics.SweepError()
		}
	}
}

// reminderDue reports whether the elapsed share of the request's own window
// has crossed the configured percentage. Using the per-request window keeps
// later settings changes from retroactively moving thresholds.
func reminderDue(sentAt, expiresAt time.Time, reminderPct int, now time.Time) bool {
	window := expiresAt.Sub(sentAt)
	if window <= 0 {
		return false
	}
	threshold := sentAt.Add(window * time.Duration(reminderPct) / 100)
	return !now.Before(threshold)
}
