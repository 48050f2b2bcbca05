// Package notify delivers review notifications as structured log records.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type Kind string

const (
	KindAssigned   Kind = "assigned"
	KindReminder   Kind = "reminder"
	KindEscalation Kind = "escalation"
	KindCompleted  Kind = "completed"
)

const defaultOutboxSize = 1000

type Message struct {
	Kind       Kind      `json:"kind"`
	ReviewID   string    `json:"review_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Level      int       `json:"escalation_level,omitempty"`
	Recipients []string  `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

type Config struct {
	// PerSecond is the sustained send rate. Zero disables throttling.
	PerSecond  float64
	Burst      int
	OutboxSize int
}

// LogNotifier writes every notification to the logger and keeps the most
// recent ones in a bounded outbox.
type LogNotifier struct {
	logger  *slog.Logger
	limiter *rate.Limiter
	nowFunc func() time.Time
	size    int

	mu     sync.Mutex
	outbox []Message
}

func NewLogNotifier(cfg Config, logger *slog.Logger, nowFunc func() time.Time) *LogNotifier {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	return &LogNotifier{
		logger:  logger,
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		nowFunc: nowFunc,
		size:    cfg.OutboxSize,
	}
}

func (n *LogNotifier) ReviewAssigned(ctx context.Context, r domain.Review, recipients []string) error {
	return n.send(ctx, KindAssigned, r, recipients)
}

func (n *LogNotifier) ReviewReminder(ctx context.Context, r domain.Review, recipients []string) error {
	return n.send(ctx, KindReminder, r, recipients)
}

func (n *LogNotifier) ReviewEscalation(ctx context.Context, r domain.Review, recipients []string) error {
	return n.send(ctx, KindEscalation, r, recipients)
}

func (n *LogNotifier) ReviewCompleted(ctx context.Context, r domain.Review, recipients []string) error {
	return n.send(ctx, KindCompleted, r, recipients)
}

// Outbox returns the retained messages oldest first.
func (n *LogNotifier) Outbox() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.outbox)
}

func (n *LogNotifier) send(ctx context.Context, kind Kind, r domain.Review, recipients []string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification throttled: %w", err)
	}

	msg := Message{
		Kind:       kind,
		ReviewID:   r.ID,
		Title:      r.Title,
		Status:     string(r.Status),
		Level:      r.EscalationLevel,
		Recipients: slices.Clone(recipients),
		SentAt:     n.nowFunc(),
	}

	n.mu.Lock()
	n.outbox = append(n.outbox, msg)
	if len(n.outbox) > n.size {
		n.outbox = slices.Delete(n.outbox, 0, len(n.outbox)-n.size)
	}
	n.mu.Unlock()

	n.logger.Info("notification sent",
		"kind", string(kind),
		"review_id", r.ID,
		"recipients", recipients,
		"escalation_level", r.EscalationLevel,
	)
	return nil
}
