package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forsitet/review-workflow-service/internal/domain"
	"github.com/forsitet/review-workflow-service/internal/repo/memory"
)

func newUserService(t *testing.T) (*UserService, *memory.UserRepo, *memory.ReviewRepo, *AuditService) {
	t.Helper()
	users := memory.NewUserRepo()
	reviews := memory.NewReviewRepo()
	audit := NewAuditService(memory.NewAuditLogRepo(), discardLogger(), fixedNow(testNow))
	return NewUserService(users, reviews, audit, discardLogger(), fixedNow(testNow)), users, reviews, audit
}

func TestUserService_Create(t *testing.T) {
	ctx := context.Background()
	svc, _, _, audit := newUserService(t)

	u, err := svc.Create(ctx, CreateUserInput{
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []domain.Role{domain.RoleDeveloper},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, testNow, u.CreatedAt)

	entries, err := audit.Trail(ctx, domain.EntityTypeUser, u.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionCreate, entries[0].Action)

	tests := []struct {
		name    string
		in      CreateUserInput
		wantErr error
	}{
		{
			name:    "duplicate username",
			in:      CreateUserInput{Username: "alice", Email: "other@example.com"},
			wantErr: domain.ErrConflict,
		},
		{
			name:    "invalid email",
			in:      CreateUserInput{Username: "bob", Email: "bob"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown role",
			in:      CreateUserInput{Username: "bob", Email: "bob@example.com", Roles: []domain.Role{"wizard"}},
			wantErr: domain.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserService_Roles(t *testing.T) {
	ctx := context.Background()
	svc, _, _, audit := newUserService(t)

	u, err := svc.Create(ctx, CreateUserInput{ID: "bob", Username: "bob", Email: "bob@example.com", Roles: []domain.Role{domain.RoleReviewer}})
	require.NoError(t, err)

	u, err = svc.AddRole(ctx, u.ID, domain.RoleSecurityEngineer, "erin")
	require.NoError(t, err)
	assert.True(t, u.HasRole(domain.RoleSecurityEngineer))

	security, err := svc.List(ctx, domain.RoleSecurityEngineer)
	require.NoError(t, err)
	require.Len(t, security, 1)
	assert.Equal(t, "bob", security[0].ID)

	u, err = svc.RemoveRole(ctx, u.ID, domain.RoleReviewer, "erin")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleSecurityEngineer}, u.Roles)

	_, err = svc.AddRole(ctx, u.ID, "wizard", "erin")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddRole(ctx, "ghost", domain.RoleAdmin, "erin")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	byErin, err := audit.ByActor(ctx, "erin")
	require.NoError(t, err)
	require.Len(t, byErin, 2)
	assert.Contains(t, byErin[0].Changes, "roles")
}

func TestUserService_ListReviews(t *testing.T) {
	ctx := context.Background()
	svc, users, reviews, _ := newUserService(t)

	alice := testUser(t, "alice", domain.RoleDeveloper)
	bob := testUser(t, "bob", domain.RoleReviewer)
	for _, u := range []domain.User{alice, bob} {
		_, err := users.Save(ctx, u)
		require.NoError(t, err)
	}

	older := testReview(t, "r1", testNow.Add(-time.Hour))
	newer := testReview(t, "r2", testNow)
	newer = assigned(t, newer, "bob")
	byBob, err := domain.NewReview("r3", "bob's change", "", "feature/r3", "main", bob, testNow.Add(-2*time.Hour))
	require.NoError(t, err)
	byBob = assigned(t, byBob, "alice")
	for _, r := range []domain.Review{older, newer, byBob} {
		_, err := reviews.Save(ctx, r)
		require.NoError(t, err)
	}

	got, err := svc.ListReviews(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, ids(got))

	got, err = svc.ListReviews(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1", "r3"}, ids(got))

	_, err = svc.ListReviews(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserService_Seed(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newUserService(t)

	seed := []CreateUserInput{
		{ID: "alice", Username: "alice", Email: "alice@example.com", Roles: []domain.Role{domain.RoleDeveloper}},
		{ID: "bob", Username: "bob", Email: "bob@example.com", Roles: []domain.Role{domain.RoleReviewer}},
	}
	n, err := svc.Seed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.Seed(ctx, seed)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func ids(reviews []domain.Review) []string {
	out := make([]string, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, r.ID)
	}
	return out
}
