// Package settings loads tenant-scoped configuration into validated, typed
// values. Parsing happens once per load; an unsupported value is an error at
// that point, never a runtime branch into undefined behavior.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/store"
)

// ConflictStrategy resolves a musician appearing on multiple ranking lists
// bound to one need.
type ConflictStrategy string

const (
	// FirstListWins keeps the musician's placement from the first list in
	// precedence order and drops later duplicates.
	FirstListWins ConflictStrategy = "first-list-wins"
	// HighestRankWins keeps the occurrence with the lowest rank number
	// across lists.
	HighestRankWins ConflictStrategy = "highest-rank-wins"
)

var (
	ErrUnknownStrategy        = errors.New("unknown ranking conflict strategy")
	ErrInvalidReminderPercent = errors.New("reminder_percentage must be an integer between 0 and 100")
	ErrInvalidResponseWindow  = errors.New("response_window_hours must be a positive integer")
)

// Defaults applied when a tenant has no stored value for a key.
const (
	DefaultReminderPercentage = 75
	DefaultConflictStrategy   = FirstListWins
)

// Settings holds a tenant's validated staffing configuration.
type Settings struct {
	// ReminderPercentage is the fraction (0-100) of the response window that
	// must elapse before a reminder fires.
	ReminderPercentage int
	// ConflictStrategy resolves duplicate ranking entries across lists.
	ConflictStrategy ConflictStrategy
	// ResponseWindow is how long a request remains answerable.
	ResponseWindow time.Duration
}

// ParseConflictStrategy validates a raw strategy string.
func ParseConflictStrategy(raw string) (ConflictStrategy, error) {
	switch ConflictStrategy(raw) {
	case FirstListWins:
		return FirstListWins, nil
	case HighestRankWins:
		return HighestRankWins, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
	}
}

// Load reads and validates a tenant's settings. defaultWindow is the
// server-level response window used when the tenant has not overridden it.
func Load(ctx context.Context, s *store.Store, defaultWindow time.Duration) (*Settings, error) {
	out := &Settings{
		ReminderPercentage: DefaultReminderPercentage,
		ConflictStrategy:   DefaultConflictStrategy,
		ResponseWindow:     defaultWindow,
	}

	if raw, err := getValue(ctx, s, model.SettingReminderPercentage); err != nil {
		return nil, err
	} else if raw != "" {
		pct, err := strconv.Atoi(raw)
		if err != nil || pct < 0 || pct > 100 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidReminderPercent, raw)
		}
		out.ReminderPercentage = pct
	}

	if raw, err := getValue(ctx, s, model.SettingRankingConflictStrategy); err != nil {
		return nil, err
	} else if raw != "" {
		strategy, err := ParseConflictStrategy(raw)
		if err != nil {
			return nil, err
		}
		out.ConflictStrategy = strategy
	}

	if raw, err := getValue(ctx, s, model.SettingResponseWindowHours); err != nil {
		return nil, err
	} else if raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidResponseWindow, raw)
		}
		out.ResponseWindow = time.Duration(hours) * time.Hour
	}

	return out, nil
}

func getValue(ctx context.Context, s *store.Store, key string) (string, error) {
	setting, err := s.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load setting %s: %w", key, err)
	}
	return setting.Value, nil
}
