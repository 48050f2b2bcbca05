package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

const (
	defaultSweepConcurrency = 4
	defaultReminderDebounce = 4 * time.Hour
)

type EscalationConfig struct {
	// Concurrency bounds the notification fan-out of a single sweep.
	Concurrency      int
	ReminderDebounce time.Duration
}

type SweepResult struct {
	Escalated          []string   `json:"escalated"`
	Reminded           []string   `json:"reminded"`
	Overdue            int        `json:"overdue"`
	EnvironmentsReaped int        `json:"environments_reaped"`
	Summary            SLASummary `json:"summary"`
}

// EscalationService runs the periodic SLA sweep. Deadline escalations bump
// the review's level and notify reviewers and admins. The aging heuristic
// only sends reminders to reviewers.
type EscalationService struct {
	reviews  ReviewRepository
	users    UserRepository
	notifier Notifier
	envs     *EnvironmentService
	sla      *SLAService
	policy   *ReviewPolicy
	audit    *AuditService
	metrics  Metrics
	cfg      EscalationConfig
	logger   *slog.Logger
	nowFunc  func() time.Time

	mu       sync.Mutex
	reminded map[string]time.Time
}

type EscalationServiceDeps struct {
	Reviews      ReviewRepository
	Users        UserRepository
	Notifier     Notifier
	Environments *EnvironmentService
	SLA          *SLAService
	Policy       *ReviewPolicy
	Audit        *AuditService
	Metrics      Metrics
	Config       EscalationConfig
	Logger       *slog.Logger
	NowFunc      func() time.Time
}

func NewEscalationService(d EscalationServiceDeps) *EscalationService {
	if d.NowFunc == nil {
		d.NowFunc = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Config.Concurrency <= 0 {
		d.Config.Concurrency = defaultSweepConcurrency
	}
	if d.Config.ReminderDebounce <= 0 {
		d.Config.ReminderDebounce = defaultReminderDebounce
	}
	return &EscalationService{
		reviews:  d.Reviews,
		users:    d.Users,
		notifier: d.Notifier,
		envs:     d.Environments,
		sla:      d.SLA,
		policy:   d.Policy,
		audit:    d.Audit,
		metrics:  d.Metrics,
		cfg:      d.Config,
		logger:   d.Logger,
		nowFunc:  d.NowFunc,
		reminded: make(map[string]time.Time),
	}
}

// Sweep evaluates every active review once. Individual review failures are
// logged and do not stop the sweep.
func (s *EscalationService) Sweep(ctx context.Context) (SweepResult, error) {
	all, err := s.reviews.FindAll(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list reviews: %w", err)
	}
	admins, err := s.users.FindByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list admins: %w", err)
	}
	adminIDs := make([]string, 0, len(admins))
	for _, a := range admins {
		adminIDs = append(adminIDs, a.ID)
	}

	var (
		mu  sync.Mutex
		res = SweepResult{Escalated: []string{}, Reminded: []string{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, r := range all {
		if r.Status.IsTerminal() {
			continue
		}
		switch {
		case s.sla.ShouldSendEscalationNotification(r):
			g.Go(func() error {
				if s.escalate(gctx, r.ID, adminIDs) {
					mu.Lock()
					res.Escalated = append(res.Escalated, r.ID)
					mu.Unlock()
				}
				return nil
			})
		case s.policy.ShouldEscalate(r) && s.claimReminder(r.ID):
			g.Go(func() error {
				s.notify(gctx, "reminder", s.notifier.ReviewReminder, r, r.Reviewers)
				mu.Lock()
				res.Reminded = append(res.Reminded, r.ID)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}
	slices.Sort(res.Escalated)
	slices.Sort(res.Reminded)

	if s.envs != nil {
		reaped, err := s.envs.ReapExpired(ctx)
		if err != nil {
			s.logger.Warn("reap expired environments", "error", err)
		}
		res.EnvironmentsReaped = reaped
	}

	// Re-read so the summary reflects the escalations just applied.
	if len(res.Escalated) > 0 {
		if all, err = s.reviews.FindAll(ctx); err != nil {
			return SweepResult{}, fmt.Errorf("list reviews: %w", err)
		}
	}
	res.Summary = s.sla.Summary(all)
	res.Overdue = res.Summary.Overdue
	s.metrics.SLASnapshot(res.Summary.OnTime, res.Summary.AtRisk, res.Summary.Overdue, res.Summary.Escalated)

	s.logger.Info("sla sweep finished",
		"escalated", len(res.Escalated),
		"reminded", len(res.Reminded),
		"overdue", res.Overdue,
		"environments_reaped", res.EnvironmentsReaped,
	)
	return res, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *EscalationService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sla sweep failed", "error", err)
			}
		}
	}
}

// escalate re-checks the review under the repository lock so that two
// concurrent sweeps cannot both escalate it.
func (s *EscalationService) escalate(ctx context.Context, id string, adminIDs []string) bool {
	var (
		before  domain.Review
		skipped bool
	)
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !s.sla.ShouldSendEscalationNotification(cur) {
			skipped = true
			return cur, nil
		}
		before = cur
		return s.sla.Escalate(cur), nil
	})
	if err != nil {
		s.logger.Warn("escalate review", "error", err, "review_id", id)
		return false
	}
	if skipped {
		return false
	}

	recipients := slices.Clone(updated.Reviewers)
	for _, a := range adminIDs {
		if !slices.Contains(recipients, a) {
			recipients = append(recipients, a)
		}
	}
	s.notify(ctx, "escalation", s.notifier.ReviewEscalation, updated, recipients)

	oldState := reviewSnapshot(before)
	newState := reviewSnapshot(updated)
	s.audit.Record(ctx, domain.EntityTypeReview, id, domain.AuditActionEscalate, SystemActor, domain.AuditLogParams{
		OldState:    oldState,
		NewState:    newState,
		Changes:     diffSnapshots(oldState, newState),
		Description: fmt.Sprintf("escalated to level %d", updated.EscalationLevel),
	})
	s.metrics.EscalationRaised(updated.EscalationLevel)
	s.metrics.ReviewTransition(domain.AuditActionEscalate)
	return true
}

// claimReminder reports whether a reminder for id is due and, if so,
// records it as sent. Entries past the debounce window are dropped.
func (s *EscalationService) claimReminder(id string) bool {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	for rid, last := range s.reminded {
		if now.Sub(last) >= s.cfg.ReminderDebounce {
			delete(s.reminded, rid)
		}
	}
	if _, ok := s.reminded[id]; ok {
		return false
	}
	s.reminded[id] = now
	return true
}

func (s *EscalationService) notify(ctx context.Context, kind string, send notifyFunc, r domain.Review, recipients []string) {
	if len(recipients) == 0 {
		return
	}
	err := send(ctx, r, recipients)
	s.metrics.NotificationSent(kind, err)
	if err != nil {
		s.logger.Warn("send notification", "error", err, "kind", kind, "review_id", r.ID)
	}
}
