// Package environment provisions preview deployments in process. URLs are
// derived from the environment id, so they are stable across restarts.
package environment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

const DefaultBaseDomain = "preview.local"

type Provisioner struct {
	baseDomain string

	mu     sync.Mutex
	status map[string]domain.EnvironmentStatus
	urls   map[string]string
}

func NewProvisioner(baseDomain string) *Provisioner {
	if baseDomain == "" {
		baseDomain = DefaultBaseDomain
	}
	return &Provisioner{
		baseDomain: strings.TrimPrefix(baseDomain, "."),
		status:     make(map[string]domain.EnvironmentStatus),
		urls:       make(map[string]string),
	}
}

func (p *Provisioner) Create(ctx context.Context, env domain.Environment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	short := env.ID
	if len(short) > 8 {
		short = short[:8]
	}
	url := fmt.Sprintf("https://review-%s.%s", short, p.baseDomain)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[env.ID] = domain.EnvironmentStatusRunning
	p.urls[env.ID] = url
	return url, nil
}

func (p *Provisioner) Start(ctx context.Context, envID string) error {
	return p.transition(envID, domain.EnvironmentStatusRunning)
}

func (p *Provisioner) Stop(ctx context.Context, envID string) error {
	return p.transition(envID, domain.EnvironmentStatusStopped)
}

func (p *Provisioner) Destroy(ctx context.Context, envID string) error {
	if err := p.transition(envID, domain.EnvironmentStatusDestroyed); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.urls, envID)
	p.mu.Unlock()
	return nil
}

func (p *Provisioner) Status(ctx context.Context, envID string) (domain.EnvironmentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.status[envID]
	if !ok {
		return "", domain.NewNotFoundError("environment", envID)
	}
	return st, nil
}

func (p *Provisioner) URL(ctx context.Context, envID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	url, ok := p.urls[envID]
	if !ok {
		return "", domain.NewNotFoundError("environment", envID)
	}
	return url, nil
}

func (p *Provisioner) transition(envID string, to domain.EnvironmentStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.status[envID]
	if !ok {
		return domain.NewNotFoundError("environment", envID)
	}
	if st == domain.EnvironmentStatusDestroyed {
		return domain.NewIllegalStateError("environment %s is destroyed", envID)
	}
	p.status[envID] = to
	return nil
}
