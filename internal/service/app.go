package service

type App struct {
	Reviews      *ReviewService
	Users        *UserService
	Environments *EnvironmentService
	Escalations  *EscalationService
	Stats        *StatsService
	Audit        *AuditService
}

func NewApp(
	reviews *ReviewService,
	users *UserService,
	envs *EnvironmentService,
	escalations *EscalationService,
	stats *StatsService,
	audit *AuditService,
) *App {
	return &App{
		Reviews:      reviews,
		Users:        users,
		Environments: envs,
		Escalations:  escalations,
		Stats:        stats,
		Audit:        audit,
	}
}
