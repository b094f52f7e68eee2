package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/settings"
	"github.com/ensemblehq/chairfill/internal/store"
)

// DispatchedRequest reports one persisted request from a send operation.
type DispatchedRequest struct {
	RequestID  string `json:"requestId"`
	MusicianID string `json:"musicianId"`
	Rank       int    `json:"rank"`
	// Notified is false when the notification collaborator failed; the
	// request stays pending and an external retry may resend with the same
	// unexpired token.
	Notified bool `json:"notified"`
}

// DispatchResult is the outcome of a commit-mode send for one need.
type DispatchResult struct {
	NeedID     string              `json:"needId"`
	Quantity   int                 `json:"quantity"`
	Accepted   int                 `json:"accepted"`
	Remaining  int                 `json:"remaining"`
	Dispatched []DispatchedRequest `json:"dispatched"`
}

// SendRequests selects and dispatches the next batch of musicians for a
// need. The selection and request creation run inside the need's critical
// section so concurrent sends and backfills never overselect.
func (s *StaffingService) SendRequests(ctx context.Context, tenantID string, st *store.Store, needID string, batchSize int) (*DispatchResult, error) {
	need, err := st.GetNeedByID(ctx, needID)
	if err != nil {
		return nil, fmt.Errorf("failed to load need: %w", err)
	}
	if !need.IsSelectable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNeedNotSelectable, need.ID, need.Status)
	}

	unlock := s.locks.acquire(lockKey(tenantID, needID))
	defer unlock()

	return s.dispatchLocked(ctx, tenantID, st, need, batchSize)
}

// backfill re-runs commit-mode selection for a need's shortfall. Used by the
// decline path and the timeout sweep; both share the same critical section
// as operator-initiated sends.
func (s *StaffingService) backfill(ctx context.Context, tenantID string, st *store.Store, needID string) (*DispatchResult, error) {
	need, err := st.GetNeedByID(ctx, needID)
	if err != nil {
		return nil, fmt.Errorf("failed to load need: %w", err)
	}
	if !need.IsSelectable() {
		// An archived or paused need stops backfill without touching its
		// remaining pending requests.
		return &DispatchResult{NeedID: needID, Quantity: need.Quantity}, nil
	}

	unlock := s.locks.acquire(lockKey(tenantID, needID))
	defer unlock()

	return s.dispatchLocked(ctx, tenantID, st, need, 0)
}

// dispatchLocked runs selection and dispatch. Callers must hold the need's
// lock.
func (s *StaffingService) dispatchLocked(ctx context.Context, tenantID string, st *store.Store, need *model.Need, batchSize int) (*DispatchResult, error) {
	selection, err := s.selectForNeed(ctx, st, need, batchSize, false)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{
		NeedID:    need.ID,
		Quantity:  selection.Quantity,
		Accepted:  selection.Accepted,
		Remaining: selection.Remaining,
	}
	if !selection.CanSend {
		return result, nil
	}

	cfg, err := settings.Load(ctx, st, s.defaultWindow)
	if err != nil {
		return nil, err
	}

	progressKey := lockKey(tenantID, need.ID)
	if s.tracker != nil {
		s.tracker.Begin(progressKey, len(selection.Selected))
	}

	for i, candidate := range selection.Selected {
		dispatched, err := s.dispatchOne(ctx, st, need, candidate, cfg)
		if err != nil {
			// A persistence failure aborts this candidate's dispatch and is
			// reported; requests already created stay valid.
			if s.tracker != nil {
				s.tracker.Fail(progressKey)
			}
			return result, fmt.Errorf("failed to dispatch request to musician %s: %w", candidate.MusicianID, err)
		}
		result.Dispatched = append(result.Dispatched, *dispatched)
		if s.tracker != nil {
			s.tracker.Advance(progressKey, len(result.Dispatched), i+1)
		}
	}

	if s.tracker != nil {
		s.tracker.Complete(progressKey)
	}
	return result, nil
}

// dispatchOne persists one request with its token and hands the notification
// to the external sender. Notification failure is not an error here: the
// request stays pending with no communication log entry, so the sweeps still
// apply on schedule.
func (s *StaffingService) dispatchOne(ctx context.Context, st *store.Store, need *model.Need, candidate Candidate, cfg *settings.Settings) (*DispatchedRequest, error) {
	musician, err := st.GetMusicianByID(ctx, candidate.MusicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to load musician: %w", err)
	}

	rawToken, err := mintToken()
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	now := s.now()
	request := &model.Request{
		NeedID:     need.ID,
		MusicianID: musician.ID,
		Status:     model.RequestStatusPending,
		SentAt:     now,
	}
	token := &model.ResponseToken{
		TokenHash: HashToken(rawToken),
		ExpiresAt: now.Add(cfg.ResponseWindow),
	}
	if err := st.CreateRequestWithToken(ctx, request, token); err != nil {
		return nil, err
	}
	s.metrics.RequestSent()

	dispatched := &DispatchedRequest{
		RequestID:  request.ID,
		MusicianID: musician.ID,
		Rank:       candidate.Rank,
	}

	if err := s.notifier.SendRequest(ctx, musician, need, rawToken, token.ExpiresAt); err != nil {
		s.metrics.NotifyFailed()
		s.log.Warnw("request notification failed, leaving request pending",
			"request", request.ID, "musician", musician.ID, "error", err)
		return dispatched, nil
	}

	if _, err := st.ClaimCommunication(ctx, request.ID, model.CommunicationKindRequest, now); err != nil {
		s.log.Warnw("failed to record request communication", "request", request.ID, "error", err)
	}
	dispatched.Notified = true
	return dispatched, nil
}

// mintToken generates a 256-bit URL-safe response token.
func mintToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest stored in place of the token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
