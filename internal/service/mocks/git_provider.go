package mocks

import (
	"context"
	"sync"
)

type MockGitProvider struct {
	CreateResult string
	CreateErr    error
	UpdateErr    error
	DiffResult   string
	DiffErr      error
	CommentErr   error
	StatusErr    error
	StatusResult string

	mu          sync.Mutex
	StatusCalls []string
	Comments    []string
}

func (m *MockGitProvider) CreatePullRequest(ctx context.Context, title, description, sourceBranch, targetBranch string) (string, error) {
	return m.CreateResult, m.CreateErr
}

func (m *MockGitProvider) UpdatePullRequest(ctx context.Context, prID, title, description string) error {
	return m.UpdateErr
}

func (m *MockGitProvider) GetPullRequestDiff(ctx context.Context, prID string) (string, error) {
	return m.DiffResult, m.DiffErr
}

func (m *MockGitProvider) AddCommentToPullRequest(ctx context.Context, prID, body, filePath string, line *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Comments = append(m.Comments, body)
	return m.CommentErr
}

func (m *MockGitProvider) SetPullRequestStatus(ctx context.Context, prID, state, description, targetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCalls = append(m.StatusCalls, state)
	return m.StatusErr
}

func (m *MockGitProvider) GetPullRequestStatus(ctx context.Context, prID string) (string, error) {
	return m.StatusResult, m.StatusErr
}
