// Package notify defines the outbound notification collaborator. The core
// decides what is sent and to whom; transport lives outside.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ensemblehq/chairfill/internal/model"
)

// Notifier delivers staffing messages to musicians. Implementations must be
// safe for concurrent use.
type Notifier interface {
	// SendRequest delivers the initial offer, including the single-use
	// response token the musician answers with.
	SendRequest(ctx context.Context, musician *model.Musician, need *model.Need, token string, expiresAt time.Time) error
	// SendReminder nudges a musician whose request is still unanswered.
	SendReminder(ctx context.Context, musician *model.Musician, request *model.Request, expiresAt time.Time) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// Useful for development and as the default when no transport is wired.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendRequest(_ context.Context, musician *model.Musician, need *model.Need, token string, expiresAt time.Time) error {
	n.log.Infow("request notification",
		"musician", musician.ID,
		"email", musician.Email,
		"need", need.ID,
		"token", token,
		"expires_at", expiresAt,
	)
	return nil
}

func (n *LogNotifier) SendReminder(_ context.Context, musician *model.Musician, request *model.Request, expiresAt time.Time) error {
	n.log.Infow("reminder notification",
		"musician", musician.ID,
		"email", musician.Email,
		"request", request.ID,
		"expires_at", expiresAt,
	)
	return nil
}
