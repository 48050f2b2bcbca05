package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/forsitet/review-workflow-service/internal/adapters/environment"
	"github.com/forsitet/review-workflow-service/internal/adapters/git"
	"github.com/forsitet/review-workflow-service/internal/adapters/notify"
	"github.com/forsitet/review-workflow-service/internal/adapters/risk"
	"github.com/forsitet/review-workflow-service/internal/config"
	"github.com/forsitet/review-workflow-service/internal/metrics"
	"github.com/forsitet/review-workflow-service/internal/repo/memory"
	"github.com/forsitet/review-workflow-service/internal/repo/postgres"
	"github.com/forsitet/review-workflow-service/internal/service"
)

const connectTimeout = 5 * time.Second

type storage struct {
	users    service.UserRepository
	reviews  reviewStore
	comments service.CommentRepository
	scores   service.RiskScoreRepository
	envs     service.EnvironmentRepository
	audit    service.AuditLogRepository

	db *sqlx.DB
}

// reviewStore is the review repository plus the aggregate queries the
// stats endpoint reads.
type reviewStore interface {
	service.ReviewRepository
	service.ReviewStatsRepo
}

func (s *storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func memoryStorage() *storage {
	return &storage{
		users:    memory.NewUserRepo(),
		reviews:  memory.NewReviewRepo(),
		comments: memory.NewCommentRepo(),
		scores:   memory.NewRiskScoreRepo(),
		envs:     memory.NewEnvironmentRepo(),
		audit:    memory.NewAuditLogRepo(),
	}
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.ConnString(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	return db, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Info("using in-memory storage")
		return memoryStorage(), nil
	}

	db, err := connectPostgres(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db.DB, logger); err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.Error("failed to close db", "error", cerr)
		}
		return nil, err
	}

	return &storage{
		users:    postgres.NewUserRepo(db),
		reviews:  postgres.NewReviewRepo(db, logger),
		comments: postgres.NewCommentRepo(db),
		scores:   postgres.NewRiskScoreRepo(db),
		envs:     postgres.NewEnvironmentRepo(db),
		audit:    postgres.NewAuditLogRepo(db),
		db:       db,
	}, nil
}

func slaConfig(cfg config.SLAConfig) (service.SLAConfig, error) {
	hours, err := cfg.Hours()
	if err != nil {
		return service.SLAConfig{}, err
	}
	out := service.DefaultSLAConfig()
	for p, h := range hours {
		out.HoursByPriority[p] = h
	}
	if cfg.DefaultHours > 0 {
		out.DefaultHours = cfg.DefaultHours
	}
	if cfg.EscalationThreshold > 0 {
		out.EscalationThreshold = cfg.EscalationThreshold
	}
	if cfg.NotificationDebounce > 0 {
		out.NotificationDebounce = cfg.NotificationDebounce
	}
	return out, nil
}

func seedInputs(cfg *config.Config) ([]service.CreateUserInput, error) {
	out := make([]service.CreateUserInput, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		roles, err := u.ParsedRoles()
		if err != nil {
			return nil, err
		}
		out = append(out, service.CreateUserInput{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			FullName: u.FullName,
			Roles:    roles,
		})
	}
	return out, nil
}

// buildApp assembles the services over st and seeds the configured users.
func buildApp(ctx context.Context, cfg *config.Config, st *storage, m *metrics.Metrics, logger *slog.Logger) (*service.App, error) {
	now := time.Now

	var sm service.Metrics
	if m != nil {
		sm = m
	}

	slaCfg, err := slaConfig(cfg.SLA)
	if err != nil {
		return nil, err
	}
	analyzer, err := risk.NewAnalyzer(cfg.Risk.Weights, now)
	if err != nil {
		return nil, fmt.Errorf("build risk analyzer: %w", err)
	}
	notifier := notify.NewLogNotifier(notify.Config{
		PerSecond: cfg.Notifications.Rate,
		Burst:     cfg.Notifications.Burst,
	}, logger, now)

	sla := service.NewSLAService(slaCfg, now)
	policy := service.NewReviewPolicy(now)
	audit := service.NewAuditService(st.audit, logger, now)
	envs := service.NewEnvironmentService(st.envs, st.reviews, environment.NewProvisioner(cfg.Environment.BaseDomain), audit,
		service.EnvironmentConfig{TTLMinutes: cfg.Environment.TTLMinutes}, logger, now)

	reviews := service.NewReviewService(service.ReviewServiceDeps{
		Reviews:      st.reviews,
		Users:        st.users,
		Comments:     st.comments,
		RiskScores:   st.scores,
		Risk:         analyzer,
		Git:          git.NewProvider(),
		Notifier:     notifier,
		Environments: envs,
		SLA:          sla,
		Policy:       policy,
		Audit:        audit,
		Metrics:      sm,
		Logger:       logger,
		NowFunc:      now,
	})
	escalations := service.NewEscalationService(service.EscalationServiceDeps{
		Reviews:      st.reviews,
		Users:        st.users,
		Notifier:     notifier,
		Environments: envs,
		SLA:          sla,
		Policy:       policy,
		Audit:        audit,
		Metrics:      sm,
		Config: service.EscalationConfig{
			Concurrency:      cfg.Escalation.Concurrency,
			ReminderDebounce: cfg.Escalation.ReminderDebounce,
		},
		Logger:  logger,
		NowFunc: now,
	})
	users := service.NewUserService(st.users, st.reviews, audit, logger, now)

	seeds, err := seedInputs(cfg)
	if err != nil {
		return nil, err
	}
	if len(seeds) > 0 {
		created, err := users.Seed(ctx, seeds)
		if err != nil {
			return nil, fmt.Errorf("seed users: %w", err)
		}
		logger.Info("seeded users", "created", created, "configured", len(seeds))
	}

	return service.NewApp(reviews, users, envs, escalations, service.NewStatsService(st.reviews, st.reviews, sla), audit), nil
}
