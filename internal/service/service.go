// Package service implements the staffing coordination core: candidate
// ranking, recipient selection, request dispatch, response handling and the
// reminder/timeout sweeps. All operations act on a tenant-scoped store
// handle resolved by the caller; the service itself holds no tenant state.
package service

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ensemblehq/chairfill/internal/metrics"
	"github.com/ensemblehq/chairfill/internal/notify"
	"github.com/ensemblehq/chairfill/internal/progress"
)

// Service-level errors surfaced to the HTTP layer.
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrAlreadyResponded  = errors.New("request already responded")
	ErrInvalidDecision   = errors.New("decision must be accepted or declined")
	ErrNeedNotSelectable = errors.New("need is not active")
)

// StaffingService coordinates substitute staffing for all tenants.
type StaffingService struct {
	log           *zap.SugaredLogger
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	tracker       *progress.Tracker
	defaultWindow time.Duration
	locks         *needLocks

	// now is injectable for deterministic sweep tests.
	now func() time.Time
}

// NewStaffingService creates the staffing service. metrics may be nil.
func NewStaffingService(log *zap.SugaredLogger, notifier notify.Notifier, m *metrics.Metrics, tracker *progress.Tracker, defaultWindow time.Duration) *StaffingService {
	return &StaffingService{
		log:           log,
		notifier:      notifier,
		metrics:       m,
		tracker:       tracker,
		defaultWindow: defaultWindow,
		locks:         newNeedLocks(),
		now:           time.Now,
	}
}

// SetClock overrides the service clock. Tests use this to drive reminder and
// timeout thresholds deterministically.
func (s *StaffingService) SetClock(now func() time.Time) {
	s.now = now
}

// lockKey qualifies a need's critical section by tenant.
func lockKey(tenantID, needID string) string {
	return tenantID + "/" + needID
}
