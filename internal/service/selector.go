package service

import (
	"context"
	"fmt"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/settings"
	"github.com/ensemblehq/chairfill/internal/store"
)

// Candidate pool annotations used by the dry-run instrumentation.
const (
	PoolStatusAvailable        = "available"
	PoolStatusAlreadyPending   = "already-pending"
	PoolStatusAlreadyAccepted  = "already-accepted"
	PoolStatusExcludedDeclined = "excluded-declined"
	PoolStatusExcludedTimeout  = "excluded-timeout"
)

// PoolEntry is one candidate annotated with its current status relative to
// the need.
type PoolEntry struct {
	Candidate
	Status string `json:"status"`
}

// SelectionResult is the outcome of one selection run.
type SelectionResult struct {
	NeedID    string      `json:"needId"`
	Quantity  int         `json:"quantity"`
	Accepted  int         `json:"accepted"`
	Remaining int         `json:"remaining"`
	CanSend   bool        `json:"canSend"`
	Selected  []Candidate `json:"selected"`
	// Pool carries the full annotated candidate pool in dry-run mode.
	Pool []PoolEntry `json:"pool,omitempty"`
}

// musicianState summarizes a musician's request history for one need.
type musicianState struct {
	hasPending     bool
	hasAccepted    bool
	latestTerminal string
}

// SelectRecipients computes the next batch of musicians to contact for a
// need without mutating anything. batchSize <= 0 means "fill the shortfall".
// Re-running with identical state yields an identical result.
func (s *StaffingService) SelectRecipients(ctx context.Context, st *store.Store, needID string, batchSize int, annotatePool bool) (*SelectionResult, error) {
	need, err := st.GetNeedByID(ctx, needID)
	if err != nil {
		return nil, fmt.Errorf("failed to load need: %w", err)
	}
	return s.selectForNeed(ctx, st, need, batchSize, annotatePool)
}

func (s *StaffingService) selectForNeed(ctx context.Context, st *store.Store, need *model.Need, batchSize int, annotatePool bool) (*SelectionResult, error) {
	accepted, err := st.CountAcceptedRequests(ctx, need.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count accepted requests: %w", err)
	}

	result := &SelectionResult{
		NeedID:    need.ID,
		Quantity:  need.Quantity,
		Accepted:  accepted,
		Remaining: need.Quantity - accepted,
	}

	// Archived and paused needs stop further selection; pending requests
	// they already hold continue to their natural resolution elsewhere.
	if result.Remaining <= 0 || !need.IsSelectable() {
		return result, nil
	}

	cfg, err := settings.Load(ctx, st, s.defaultWindow)
	if err != nil {
		return nil, err
	}

	candidates, err := s.RankedCandidates(ctx, st, need.ID, cfg.ConflictStrategy)
	if err != nil {
		return nil, err
	}

	states, err := musicianStates(ctx, st, need.ID)
	if err != nil {
		return nil, err
	}

	take := result.Remaining
	if batchSize > 0 && batchSize < take {
		take = batchSize
	}

	for _, c := range candidates {
		status := poolStatus(states[c.MusicianID])
		if annotatePool {
			result.Pool = append(result.Pool, PoolEntry{Candidate: c, Status: status})
		}
		if status == PoolStatusAvailable && len(result.Selected) < take {
			result.Selected = append(result.Selected, c)
		}
	}

	result.CanSend = len(result.Selected) > 0
	return result, nil
}

// musicianStates folds the need's request history into a per-musician
// summary. Requests arrive oldest first, so the last terminal status seen is
// the most recent one.
func musicianStates(ctx context.Context, st *store.Store, needID string) (map[string]musicianState, error) {
	requests, err := st.ListRequestsByNeed(ctx, needID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	states := make(map[string]musicianState)
	for _, r := range requests {
		state := states[r.MusicianID]
		switch r.Status {
		case model.RequestStatusPending:
			state.hasPending = true
		case model.RequestStatusAccepted:
			state.hasAccepted = true
			state.latestTerminal = r.Status
		default:
			state.latestTerminal = r.Status
		}
		states[r.MusicianID] = state
	}
	return states, nil
}

// poolStatus maps a musician's history to their selection status. Declined
// and timed-out musicians are never re-contacted automatically; cancelled
// requests leave the musician available again.
func poolStatus(state musicianState) string {
	switch {
	case state.hasPending:
		return PoolStatusAlreadyPending
	case state.hasAccepted:
		return PoolStatusAlreadyAccepted
	case state.latestTerminal == model.RequestStatusDeclined:
		return PoolStatusExcludedDeclined
	case state.latestTerminal == model.RequestStatusTimeout:
		return PoolStatusExcludedTimeout
	default:
		return PoolStatusAvailable
	}
}

// Preview runs a non-mutating dry-run selection for a need, including the
// annotated candidate pool.
func (s *StaffingService) Preview(ctx context.Context, st *store.Store, needID string) (*SelectionResult, error) {
	return s.SelectRecipients(ctx, st, needID, 0, true)
}

// PreviewProject runs dry-run selection for every active need of a project.
func (s *StaffingService) PreviewProject(ctx context.Context, st *store.Store, projectID string) ([]*SelectionResult, error) {
	if _, err := st.GetProjectByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	needs, err := st.ListActiveNeedsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list needs: %w", err)
	}

	results := make([]*SelectionResult, 0, len(needs))
	for _, need := range needs {
		result, err := s.selectForNeed(ctx, st, need, 0, true)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
