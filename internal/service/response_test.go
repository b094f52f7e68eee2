package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/store"
)

func TestValidateTokenReturnsContext(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, _ := newTestService(t)
	f := seedNeed(t, st, 1, 1)
	ctx := context.Background()

	if _, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0); err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	raw := notifier.tokenFor(t, f.musicians[0].ID)

	tc, err := svc.ValidateToken(ctx, st, raw)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if tc.Need.ID != f.need.ID {
		t.Errorf("expected need %s, got %s", f.need.ID, tc.Need.ID)
	}
	if tc.Musician.ID != f.musicians[0].ID {
		t.Errorf("expected musician %s, got %s", f.musicians[0].ID, tc.Musician.ID)
	}
	if tc.Request.Status != model.RequestStatusPending {
		t.Errorf("expected pending request, got %s", tc.Request.Status)
	}

	// Validation never consumes the token.
	if _, err := svc.ValidateToken(ctx, st, raw); err != nil {
		t.Fatalf("second ValidateToken failed: %v", err)
	}
}

func TestValidateTokenUnknown(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t)

	for _, raw := range []string{"", "not-a-real-token"} {
		if _, err := svc.ValidateToken(context.Background(), st, raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestValidateTokenExpired(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, clock := newTestService(t)
	f := seedNeed(t, st, 1, 1)
	ctx := context.Background()

	if _, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0); err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	raw := notifier.tokenFor(t, f.musicians[0].ID)

	clock.Advance(48*time.Hour + time.Minute)

	if _, err := svc.ValidateToken(ctx, st, raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := svc.Respond(ctx, testTenant, st, raw, model.RequestStatusAccepted, nil); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired on respond, got %v", err)
	}
}

func TestValidateTokenAfterTimeout(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, clock := newTestService(t)
	f := seedNeed(t, st, 1, 1)
	ctx := context.Background()

	result, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0)
	if err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	raw := notifier.tokenFor(t, f.musicians[0].ID)

	if err := st.TimeoutRequest(ctx, result.Dispatched[0].RequestID, clock.Now()); err != nil {
		t.Fatalf("failed to time out request: %v", err)
	}

	// A timed-out request reports already-responded, not expired, even though
	// its token was burned with the transition.
	if _, err := svc.ValidateToken(ctx, st, raw); !errors.Is(err, ErrAlreadyResponded) {
		t.Fatalf("expected ErrAlreadyResponded, got %v", err)
	}
}

func TestRespondAccept(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, clock := newTestService(t)
	f := seedNeed(t, st, 1, 1)
	ctx := context.Background()

	result, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0)
	if err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	raw := notifier.tokenFor(t, f.musicians[0].ID)

	payload := json.RawMessage(`{"note":"happy to play"}`)
	request, err := svc.Respond(ctx, testTenant, st, raw, model.RequestStatusAccepted, payload)
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if request.Status != model.RequestStatusAccepted {
		t.Errorf("expected accepted, got %s", request.Status)
	}
	if request.RespondedAt == nil || !request.RespondedAt.Equal(clock.Now()) {
		t.Errorf("expected responded at %v, got %v", clock.Now(), request.RespondedAt)
	}

	token, err := st.GetTokenByRequestID(ctx, result.Dispatched[0].RequestID)
	if err != nil {
		t.Fatalf("failed to load token: %v", err)
	}
	if token.UsedAt == nil {
		t.Error("expected token to be consumed")
	}

	accepted, err := st.CountAcceptedRequests(ctx, f.need.ID)
	if err != nil {
		t.Fatalf("failed to count accepted: %v", err)
	}
	if accepted != 1 {
		t.Errorf("expected 1 accepted, got %d", accepted)
	}
}

func TestRespondSecondSubmission(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, _ := newTestService(t)
	f := seedNeed(t, st, 1, 1)
	ctx := context.Background()

	if _, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0); err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	raw := notifier.tokenFor(t, f.musicians[0].ID)

	if _, err := svc.Respond(ctx, testTenant, st, raw, model.RequestStatusAccepted, nil); err != nil {
		t.Fatalf("first Respond failed: %v", err)
	}
	if _, err := svc.Respond(ctx, testTenant, st, raw, model.RequestStatusDeclined, nil); !errors.Is(err, ErrAlreadyResponded) {
		t.Fatalf("expected ErrAlreadyResponded, got %v", err)
	}
}

func TestRespondInvalidDecision(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, _ := newTestService(t)
	f := seedNeed(t, st, 1, 1)
	ctx := context.Background()

	if _, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0); err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	raw := notifier.tokenFor(t, f.musicians[0].ID)

	if _, err := svc.Respond(ctx, testTenant, st, raw, "maybe", nil); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestRespondDeclineTriggersBackfill(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, _ := newTestService(t)
	f := seedNeed(t, st, 1, 3)
	ctx := context.Background()

	if _, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0); err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	rawA := notifier.tokenFor(t, f.musicians[0].ID)

	if _, err := svc.Respond(ctx, testTenant, st, rawA, model.RequestStatusDeclined, nil); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	// The decline backfills with the next-ranked musician.
	requests, err := st.ListRequestsByNeed(ctx, f.need.ID)
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests after backfill, got %d", len(requests))
	}
	byMusician := make(map[string]string)
	for _, r := range requests {
		byMusician[r.MusicianID] = r.Status
	}
	if byMusician[f.musicians[0].ID] != model.RequestStatusDeclined {
		t.Errorf("expected A declined, got %s", byMusician[f.musicians[0].ID])
	}
	if byMusician[f.musicians[1].ID] != model.RequestStatusPending {
		t.Errorf("expected B pending, got %s", byMusician[f.musicians[1].ID])
	}
}

// Full lifecycle: a need for two musicians reaches A and B, B declines and is
// replaced by C, and A and C accepting fills the need exactly.
func TestDeclineBackfillFillsNeed(t *testing.T) {
	st := newTestStore(t)
	svc, notifier, _ := newTestService(t)
	f := seedNeed(t, st, 2, 3)
	ctx := context.Background()
	mA, mB, mC := f.musicians[0], f.musicians[1], f.musicians[2]

	result, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0)
	if err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	if len(result.Dispatched) != 2 {
		t.Fatalf("expected requests to A and B, got %d", len(result.Dispatched))
	}

	if _, err := svc.Respond(ctx, testTenant, st, notifier.tokenFor(t, mB.ID), model.RequestStatusDeclined, nil); err != nil {
		t.Fatalf("B decline failed: %v", err)
	}
	if _, err := svc.Respond(ctx, testTenant, st, notifier.tokenFor(t, mA.ID), model.RequestStatusAccepted, nil); err != nil {
		t.Fatalf("A accept failed: %v", err)
	}
	if _, err := svc.Respond(ctx, testTenant, st, notifier.tokenFor(t, mC.ID), model.RequestStatusAccepted, nil); err != nil {
		t.Fatalf("C accept failed: %v", err)
	}

	accepted, err := st.CountAcceptedRequests(ctx, f.need.ID)
	if err != nil {
		t.Fatalf("failed to count accepted: %v", err)
	}
	if accepted != 2 {
		t.Fatalf("expected the need filled with 2 accepts, got %d", accepted)
	}

	requests, err := st.ListRequestsByNeed(ctx, f.need.ID)
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	statuses := make(map[string]string)
	for _, r := range requests {
		statuses[r.MusicianID] = r.Status
	}
	if statuses[mA.ID] != model.RequestStatusAccepted || statuses[mC.ID] != model.RequestStatusAccepted {
		t.Errorf("expected A and C accepted, got %v", statuses)
	}
	if statuses[mB.ID] != model.RequestStatusDeclined {
		t.Errorf("expected B declined, got %s", statuses[mB.ID])
	}

	// The need is full; a further send finds nothing to do.
	final, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0)
	if err != nil {
		t.Fatalf("final send failed: %v", err)
	}
	if len(final.Dispatched) != 0 || final.Remaining != 0 {
		t.Errorf("expected a filled need, got %+v", final)
	}
}

func TestCancelRequest(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t)
	f := seedNeed(t, st, 1, 2)
	ctx := context.Background()

	result, err := svc.SendRequests(ctx, testTenant, st, f.need.ID, 0)
	if err != nil {
		t.Fatalf("SendRequests failed: %v", err)
	}
	requestID := result.Dispatched[0].RequestID

	request, err := svc.Cancel(ctx, st, requestID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if request.Status != model.RequestStatusCancelled {
		t.Errorf("expected cancelled, got %s", request.Status)
	}

	// Cancellation does not backfill; the need still has only one request.
	requests, err := st.ListRequestsByNeed(ctx, f.need.ID)
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	if len(requests) != 1 {
		t.Errorf("expected 1 request, got %d", len(requests))
	}

	if _, err := svc.Cancel(ctx, st, requestID); !errors.Is(err, ErrAlreadyResponded) {
		t.Fatalf("expected ErrAlreadyResponded on double cancel, got %v", err)
	}
	if _, err := svc.Cancel(ctx, st, "missing-request"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
