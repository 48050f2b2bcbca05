package domain

import "time"

type EnvironmentStatus string

const (
	EnvironmentStatusPending   EnvironmentStatus = "pending"
	EnvironmentStatusCreating  EnvironmentStatus = "creating"
	EnvironmentStatusRunning   EnvironmentStatus = "running"
	EnvironmentStatusStopped   EnvironmentStatus = "stopped"
	EnvironmentStatusFailed    EnvironmentStatus = "failed"
	EnvironmentStatusDestroyed EnvironmentStatus = "destroyed"
)

const DefaultEnvironmentTTLMinutes = 120

// Environment is an ephemeral preview deployment of a review's branch.
type Environment struct {
	ID             string            `json:"id"`
	ReviewID       string            `json:"review_id"`
	Name           string            `json:"name"`
	Branch         string            `json:"branch"`
	Status         EnvironmentStatus `json:"status"`
	TTLMinutes     int               `json:"ttl_minutes"`
	URL            string            `json:"url,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	LastAccessedAt *time.Time        `json:"last_accessed_at,omitempty"`
}

// NewEnvironment returns a pending environment. ExpiresAt is fixed here
// and never recomputed.
func NewEnvironment(id, reviewID, name, branch string, ttlMinutes int, createdAt time.Time) (Environment, error) {
	if id == "" {
		return Environment{}, NewValidationError("environment id cannot be empty")
	}
	if reviewID == "" {
		return Environment{}, NewValidationError("review id cannot be empty")
	}
	if ttlMinutes <= 0 {
		return Environment{}, NewValidationError("ttl must be positive")
	}
	return Environment{
		ID:         id,
		ReviewID:   reviewID,
		Name:       name,
		Branch:     branch,
		Status:     EnvironmentStatusPending,
		TTLMinutes: ttlMinutes,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(time.Duration(ttlMinutes) * time.Minute),
	}, nil
}

func (e Environment) clone() Environment {
	if e.LastAccessedAt != nil {
		v := *e.LastAccessedAt
		e.LastAccessedAt = &v
	}
	return e
}

// MarkCreating records that provisioning has begun.
func (e Environment) MarkCreating(at time.Time) (Environment, error) {
	if e.Status != EnvironmentStatusPending {
		return e, NewIllegalStateError("cannot provision environment in status %s", e.Status)
	}
	out := e.clone()
	out.Status = EnvironmentStatusCreating
	out.UpdatedAt = at
	return out, nil
}

func (e Environment) Start(url string, at time.Time) (Environment, error) {
	if e.Status != EnvironmentStatusPending && e.Status != EnvironmentStatusCreating {
		return e, NewIllegalStateError("cannot start environment in status %s", e.Status)
	}
	if url == "" {
		return e, NewValidationError("url must be provided when environment is running")
	}
	out := e.clone()
	out.Status = EnvironmentStatusRunning
	out.URL = url
	out.UpdatedAt = at
	out.LastAccessedAt = &at
	return out, nil
}

func (e Environment) Stop(at time.Time) (Environment, error) {
	if e.Status != EnvironmentStatusRunning {
		return e, NewIllegalStateError("cannot stop environment in status %s", e.Status)
	}
	out := e.clone()
	out.Status = EnvironmentStatusStopped
	out.UpdatedAt = at
	return out, nil
}

func (e Environment) Fail(at time.Time) (Environment, error) {
	if e.Status != EnvironmentStatusPending && e.Status != EnvironmentStatusCreating {
		return e, NewIllegalStateError("cannot fail environment in status %s", e.Status)
	}
	out := e.clone()
	out.Status = EnvironmentStatusFailed
	out.UpdatedAt = at
	return out, nil
}

func (e Environment) Destroy(at time.Time) (Environment, error) {
	if e.Status == EnvironmentStatusDestroyed {
		return e, NewIllegalStateError("environment is already destroyed")
	}
	out := e.clone()
	out.Status = EnvironmentStatusDestroyed
	out.UpdatedAt = at
	return out, nil
}

func (e Environment) MarkAccessed(at time.Time) Environment {
	out := e.clone()
	out.LastAccessedAt = &at
	out.UpdatedAt = at
	return out
}

func (e Environment) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

func (e Environment) TimeRemaining(now time.Time) time.Duration {
	return max(e.ExpiresAt.Sub(now), 0)
}

func (e Environment) IsAccessible(now time.Time) bool {
	return e.Status == EnvironmentStatusRunning && !e.IsExpired(now)
}
