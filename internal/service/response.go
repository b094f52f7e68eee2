package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/store"
)

// TokenContext is the validated context returned for an inbound token. It
// carries everything the response UI needs without mutating any state.
type TokenContext struct {
	Token    *model.ResponseToken
	Request  *model.Request
	Need     *model.Need
	Musician *model.Musician
}

// ValidateToken checks an inbound response token: existence, linkage to a
// still-pending request, expiry and prior consumption. It never mutates;
// consumption happens atomically with the state transition in Respond.
func (s *StaffingService) ValidateToken(ctx context.Context, st *store.Store, rawToken string) (*TokenContext, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}

	token, err := st.GetTokenByHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if token.Request == nil {
		return nil, ErrInvalidToken
	}

	// A request resolved by a response or the timeout sweep reports
	// already-responded, even when the token has also expired.
	if token.Request.IsTerminal() {
		return nil, ErrAlreadyResponded
	}
	if token.UsedAt != nil || s.now().After(token.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	need, err := st.GetNeedByID(ctx, token.Request.NeedID)
	if err != nil {
		return nil, fmt.Errorf("failed to load need: %w", err)
	}
	musician, err := st.GetMusicianByID(ctx, token.Request.MusicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to load musician: %w", err)
	}

	return &TokenContext{
		Token:    token,
		Request:  token.Request,
		Need:     need,
		Musician: musician,
	}, nil
}

// Respond applies an accept/decline decision to the request behind a token.
// Token consumption and the request transition commit as one unit; exactly
// one of any concurrent submissions wins, the rest see already-responded. A
// decline triggers commit-mode backfill for the need's shortfall.
func (s *StaffingService) Respond(ctx context.Context, tenantID string, st *store.Store, rawToken, decision string, payload json.RawMessage) (*model.Request, error) {
	var status string
	switch decision {
	case model.RequestStatusAccepted, model.RequestStatusDeclined:
		status = decision
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	tc, err := s.ValidateToken(ctx, st, rawToken)
	if err != nil {
		return nil, err
	}

	respondedAt := s.now()
	if err := st.ResolveRequest(ctx, tc.Token.ID, tc.Request.ID, status, respondedAt, payload); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyResponded
		}
		return nil, fmt.Errorf("failed to resolve request: %w", err)
	}
	s.metrics.ResponseApplied(status)
	s.log.Infow("response applied",
		"tenant", tenantID, "request", tc.Request.ID, "need", tc.Need.ID, "decision", status)

	if status == model.RequestStatusDeclined {
		// The decliner is now excluded by their terminal status, so the
		// regular selection path skips them.
		if _, err := s.backfill(ctx, tenantID, st, tc.Need.ID); err != nil {
			// The response itself is committed; a backfill failure is
			// reported to operators through logs, not to the musician.
			s.log.Errorw("backfill after decline failed",
				"tenant", tenantID, "need", tc.Need.ID, "error", err)
		}
	}

	return st.GetRequestByID(ctx, tc.Request.ID)
}

// Cancel transitions a pending request to cancelled. The musician remains
// eligible for later automatic selection; no backfill runs.
func (s *StaffingService) Cancel(ctx context.Context, st *store.Store, requestID string) (*model.Request, error) {
	if _, err := st.GetRequestByID(ctx, requestID); err != nil {
		return nil, err
	}
	if err := st.CancelRequest(ctx, requestID, s.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyResponded
		}
		return nil, fmt.Errorf("failed to cancel request: %w", err)
	}
	return st.GetRequestByID(ctx, requestID)
}
