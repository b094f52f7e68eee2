package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ensemblehq/chairfill/internal/database"
	"github.com/ensemblehq/chairfill/internal/logger"
	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/notify"
	"github.com/ensemblehq/chairfill/internal/progress"
	"github.com/ensemblehq/chairfill/internal/store"
)

const testTenant = "tenant-1"

// newTestStore opens a file-based SQLite store in a temp directory.
// (In-memory SQLite creates separate databases per connection, which breaks
// multi-goroutine tests.)
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := database.Open(fmt.Sprintf("sqlite3://%s/test.db", t.TempDir()))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return store.New(db.DB)
}

// mockNotifier records notifications and can be told to fail.
type mockNotifier struct {
	mu           sync.Mutex
	requests     []string // musician IDs in send order
	reminders    []string // request IDs in send order
	failRequests bool
}

func (m *mockNotifier) SendRequest(_ context.Context, musician *model.Musician, _ *model.Need, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRequests {
		return errors.New("transport unavailable")
	}
	m.requests = append(m.requests, musician.ID)
	return nil
}

func (m *mockNotifier) SendReminder(_ context.Context, _ *model.Musician, request *model.Request, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append(m.reminders, request.ID)
	return nil
}

func (m *mockNotifier) reminderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reminders)
}

var _ notify.Notifier = (*mockNotifier)(nil)

// testClock is an adjustable clock for sweep tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestService builds a staffing service with a capturing notifier and a
// controllable clock.
func newTestService(t *testing.T) (*StaffingService, *capturingNotifier, *testClock) {
	t.Helper()

	notifier := &capturingNotifier{}
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewStaffingService(
		logger.NewNop(),
		notifier,
		nil,
		progress.NewTracker(16, time.Minute),
		48*time.Hour,
	)
	svc.SetClock(clock.Now)
	return svc, notifier, clock
}

// fixture bundles the seeded entities most tests need.
type fixture struct {
	need      *model.Need
	musicians []*model.Musician // in rank order
	list      *model.RankingList
}

// seedNeed creates a project, position, need with the given quantity, and a
// single ranking list with count musicians ranked 1..count.
func seedNeed(t *testing.T, st *store.Store, quantity, count int) *fixture {
	t.Helper()
	ctx := context.Background()

	project := &model.Project{Name: "Spring Tour"}
	if err := st.CreateProject(ctx, project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	position := &model.Position{Name: "Violin 2", Instrument: "violin"}
	if err := st.CreatePosition(ctx, position); err != nil {
		t.Fatalf("failed to create position: %v", err)
	}
	need := &model.Need{
		ProjectID:  project.ID,
		PositionID: position.ID,
		Quantity:   quantity,
		Status:     model.NeedStatusActive,
	}
	if err := st.CreateNeed(ctx, need); err != nil {
		t.Fatalf("failed to create need: %v", err)
	}

	list := &model.RankingList{PositionID: position.ID, ListType: "standard"}
	if err := st.CreateRankingList(ctx, list); err != nil {
		t.Fatalf("failed to create ranking list: %v", err)
	}
	if err := st.BindNeedRankingList(ctx, &model.NeedRankingList{
		NeedID:        need.ID,
		RankingListID: list.ID,
		Precedence:    0,
	}); err != nil {
		t.Fatalf("failed to bind ranking list: %v", err)
	}

	f := &fixture{need: need, list: list}
	for i := 0; i < count; i++ {
		musician := &model.Musician{
			Name:  fmt.Sprintf("Musician %c", 'A'+i),
			Email: fmt.Sprintf("musician-%c@example.com", 'a'+i),
		}
		if err := st.CreateMusician(ctx, musician); err != nil {
			t.Fatalf("failed to create musician: %v", err)
		}
		if err := st.CreateRanking(ctx, &model.Ranking{
			RankingListID: list.ID,
			MusicianID:    musician.ID,
			Rank:          i + 1,
		}); err != nil {
			t.Fatalf("failed to create ranking: %v", err)
		}
		f.musicians = append(f.musicians, musician)
	}
	return f
}

// seedRequest creates a request in the given status through the same store
// transitions production uses.
func seedRequest(t *testing.T, st *store.Store, needID, musicianID, status string, sentAt time.Time, window time.Duration) *model.Request {
	t.Helper()
	ctx := context.Background()

	raw, err := mintToken()
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	request := &model.Request{
		NeedID:     needID,
		MusicianID: musicianID,
		Status:     model.RequestStatusPending,
		SentAt:     sentAt,
	}
	token := &model.ResponseToken{
		TokenHash: HashToken(raw),
		ExpiresAt: sentAt.Add(window),
	}
	if err := st.CreateRequestWithToken(ctx, request, token); err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resolvedAt := sentAt.Add(time.Hour)
	switch status {
	case model.RequestStatusPending:
	case model.RequestStatusAccepted, model.RequestStatusDeclined:
		if err := st.ResolveRequest(ctx, token.ID, request.ID, status, resolvedAt, nil); err != nil {
			t.Fatalf("failed to resolve request: %v", err)
		}
	case model.RequestStatusTimeout:
		if err := st.TimeoutRequest(ctx, request.ID, resolvedAt); err != nil {
			t.Fatalf("failed to time out request: %v", err)
		}
	case model.RequestStatusCancelled:
		if err := st.CancelRequest(ctx, request.ID, resolvedAt); err != nil {
			t.Fatalf("failed to cancel request: %v", err)
		}
	default:
		t.Fatalf("unknown request status %q", status)
	}
	request.Status = status
	return request
}

// capturingNotifier additionally records the raw token handed to each
// musician. Only the hash is persisted, so tests that exercise the response
// path have to capture tokens at send time.
type capturingNotifier struct {
	mockNotifier
	tokenMu sync.Mutex
	tokens  map[string]string // musician ID -> raw token
}

func (c *capturingNotifier) SendRequest(ctx context.Context, musician *model.Musician, need *model.Need, token string, expiresAt time.Time) error {
	if err := c.mockNotifier.SendRequest(ctx, musician, need, token, expiresAt); err != nil {
		return err
	}
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.tokens == nil {
		c.tokens = make(map[string]string)
	}
	c.tokens[musician.ID] = token
	return nil
}

// tokenFor returns the raw token last sent to a musician.
func (c *capturingNotifier) tokenFor(t *testing.T, musicianID string) string {
	t.Helper()
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	token, ok := c.tokens[musicianID]
	if !ok {
		t.Fatalf("no token captured for musician %s", musicianID)
	}
	return token
}
