package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/store"
)

func TestSelectRecipientsFillsShortfall(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t)
	f := seedNeed(t, st, 2, 4)

	result, err := svc.SelectRecipients(context.Background(), st, f.need.ID, 0, false)
	if err != nil {
		t.Fatalf("SelectRecipients failed: %v", err)
	}

	if result.Remaining != 2 {
		t.Errorf("expected remaining 2, got %d", result.Remaining)
	}
	if !result.CanSend {
		t.Error("expected CanSend to be true")
	}
	if len(result.Selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(result.Selected))
	}
	if result.Selected[0].MusicianID != f.musicians[0].ID || result.Selected[1].MusicianID != f.musicians[1].ID {
		t.Errorf("expected top two ranked musicians, got %v", result.Selected)
	}
}

func TestSelectRecipientsBatchSize(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t)
	f := seedNeed(t, st, 3, 3)

	result, err := svc.SelectRecipients(context.Background(), st, f.need.ID, 1, false)
	if err != nil {
		t.Fatalf("SelectRecipients failed: %v", err)
	}
	if len(result.Selected) != 1 {
		t.Fatalf("expected batch of 1, got %d", len(result.Selected))
	}
	if result.Selected[0].MusicianID != f.musicians[0].ID {
		t.Errorf("expected the top-ranked musician, got %s", result.Selected[0].MusicianID)
	}
}

func TestSelectRecipientsExcludesByHistory(t *testing.T) {
	st := newTestStore(t)
	svc, _, clock := newTestService(t)
	f := seedNeed(t, st, 3, 5)
	now := clock.Now()

	// A pending, B declined, C accepted, D timed out. Only E remains.
	seedRequest(t, st, f.need.ID, f.musicians[0].ID, model.RequestStatusPending, now, 48*time.Hour)
	seedRequest(t, st, f.need.ID, f.musicians[1].ID, model.RequestStatusDeclined, now, 48*time.Hour)
	seedRequest(t, st, f.need.ID, f.musicians[2].ID, model.RequestStatusAccepted, now, 48*time.Hour)
	seedRequest(t, st, f.need.ID, f.musicians[3].ID, model.RequestStatusTimeout, now, 48*time.Hour)

	result, err := svc.SelectRecipients(context.Background(), st, f.need.ID, 0, true)
	if err != nil {
		t.Fatalf("SelectRecipients failed: %v", err)
	}

	if result.Accepted != 1 {
		t.Errorf("expected accepted 1, got %d", result.Accepted)
	}
	if result.Remaining != 2 {
		t.Errorf("expected remaining 2, got %d", result.Remaining)
	}
	if len(result.Selected) != 1 || result.Selected[0].MusicianID != f.musicians[4].ID {
		t.Fatalf("expected only musician E selected, got %v", result.Selected)
	}

	wantStatuses := map[string]string{
		f.musicians[0].ID: PoolStatusAlreadyPending,
		f.musicians[1].ID: PoolStatusExcludedDeclined,
		f.musicians[2].ID: PoolStatusAlreadyAccepted,
		f.musicians[3].ID: PoolStatusExcludedTimeout,
		f.musicians[4].ID: PoolStatusAvailable,
	}
	if len(result.Pool) != len(wantStatuses) {
		t.Fatalf("expected %d pool entries, got %d", len(wantStatuses), len(result.Pool))
	}
	for _, entry := range result.Pool {
		if want := wantStatuses[entry.MusicianID]; entry.Status != want {
			t.Errorf("musician %s: expected pool status %s, got %s", entry.MusicianID, want, entry.Status)
		}
	}
}

func TestSelectRecipientsCancelledStaysEligible(t *testing.T) {
	st := newTestStore(t)
	svc, _, clock := newTestService(t)
	f := seedNeed(t, st, 1, 2)

	seedRequest(t, st, f.need.ID, f.musicians[0].ID, model.RequestStatusCancelled, clock.Now(), 48*time.Hour)

	result, err := svc.SelectRecipients(context.Background(), st, f.need.ID, 0, false)
	if err != nil {
		t.Fatalf("SelectRecipients failed: %v", err)
	}
	if len(result.Selected) != 1 || result.Selected[0].MusicianID != f.musicians[0].ID {
		t.Fatalf("expected cancelled musician to be selectable again, got %v", result.Selected)
	}
}

func TestSelectRecipientsNeedFull(t *testing.T) {
	st := newTestStore(t)
	svc, _, clock := newTestService(t)
	f := seedNeed(t, st, 1, 3)

	seedRequest(t, st, f.need.ID, f.musicians[0].ID, model.RequestStatusAccepted, clock.Now(), 48*time.Hour)

	result, err := svc.SelectRecipients(context.Background(), st, f.need.ID, 0, false)
	if err != nil {
		t.Fatalf("SelectRecipients failed: %v", err)
	}
	if result.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", result.Remaining)
	}
	if result.CanSend || len(result.Selected) != 0 {
		t.Errorf("expected no selection for a filled need, got %v", result.Selected)
	}
}

func TestSelectRecipientsNeedNotSelectable(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t)
	f := seedNeed(t, st, 2, 3)

	for _, status := range []string{model.NeedStatusPaused, model.NeedStatusCompleted, model.NeedStatusArchived} {
		if err := st.UpdateNeedStatus(context.Background(), f.need.ID, status); err != nil {
			t.Fatalf("failed to update need status: %v", err)
		}
		result, err := svc.SelectRecipients(context.Background(), st, f.need.ID, 0, false)
		if err != nil {
			t.Fatalf("SelectRecipients failed for %s need: %v", status, err)
		}
		if result.CanSend || len(result.Selected) != 0 {
			t.Errorf("%s need must not select, got %v", status, result.Selected)
		}
	}
}

func TestPreviewIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	svc, _, clock := newTestService(t)
	f := seedNeed(t, st, 2, 4)

	seedRequest(t, st, f.need.ID, f.musicians[0].ID, model.RequestStatusDeclined, clock.Now(), 48*time.Hour)

	first, err := svc.Preview(context.Background(), st, f.need.ID)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	second, err := svc.Preview(context.Background(), st, f.need.ID)
	if err != nil {
		t.Fatalf("second Preview failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("previews diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	// Dry-run mode never creates requests.
	requests, err := st.ListRequestsByNeed(context.Background(), f.need.ID)
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	if len(requests) != 1 {
		t.Errorf("expected only the seeded request, got %d", len(requests))
	}
}

func TestPreviewProject(t *testing.T) {
	st := newTestStore(t)
	svc, _, _ := newTestService(t)
	f := seedNeed(t, st, 2, 3)
	ctx := context.Background()

	// A second, archived need in the same project is skipped.
	archived := &model.Need{
		ProjectID:  f.need.ProjectID,
		PositionID: f.need.PositionID,
		Quantity:   1,
		Status:     model.NeedStatusArchived,
	}
	if err := st.CreateNeed(ctx, archived); err != nil {
		t.Fatalf("failed to create need: %v", err)
	}

	results, err := svc.PreviewProject(ctx, st, f.need.ProjectID)
	if err != nil {
		t.Fatalf("PreviewProject failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].NeedID != f.need.ID {
		t.Errorf("expected result for need %s, got %s", f.need.ID, results[0].NeedID)
	}

	if _, err := svc.PreviewProject(ctx, st, "missing-project"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown project, got %v", err)
	}
}
