// Package git is an in-process stand-in for a Git hosting provider.
package git

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// DefaultDiff is served for pull requests that have no diff registered.
const DefaultDiff = `diff --git a/internal/handler/user.go b/internal/handler/user.go
--- a/internal/handler/user.go
+++ b/internal/handler/user.go
@@ -10,3 +10,5 @@
 func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
-	id := r.URL.Query().Get("id")
+	id := chi.URLParam(r, "id")
+	if id == "" {
+		http.Error(w, "missing id", http.StatusBadRequest)
 	}
`

type Comment struct {
	Body     string
	FilePath string
	Line     *int
}

type Status struct {
	State       string
	Description string
	TargetURL   string
}

type PullRequest struct {
	ID           string
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	Diff         string
	Status       Status
	Comments     []Comment
}

type Provider struct {
	mu    sync.Mutex
	seq   int
	prs   map[string]*PullRequest
	diffs map[string]string
}

func NewProvider() *Provider {
	return &Provider{
		prs:   make(map[string]*PullRequest),
		diffs: make(map[string]string),
	}
}

// SetBranchDiff registers the diff returned for pull requests opened from
// sourceBranch.
func (p *Provider) SetBranchDiff(sourceBranch, diff string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diffs[sourceBranch] = diff
}

func (p *Provider) CreatePullRequest(ctx context.Context, title, description, sourceBranch, targetBranch string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	id := fmt.Sprintf("pr-%d", p.seq)
	diff, ok := p.diffs[sourceBranch]
	if !ok {
		diff = DefaultDiff
	}
	p.prs[id] = &PullRequest{
		ID:           id,
		Title:        title,
		Description:  description,
		SourceBranch: sourceBranch,
		TargetBranch: targetBranch,
		Diff:         diff,
		Status:       Status{State: "pending"},
	}
	return id, nil
}

func (p *Provider) UpdatePullRequest(ctx context.Context, prID, title, description string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, err := p.get(prID)
	if err != nil {
		return err
	}
	pr.Title = title
	pr.Description = description
	return nil
}

func (p *Provider) GetPullRequestDiff(ctx context.Context, prID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, err := p.get(prID)
	if err != nil {
		return "", err
	}
	return pr.Diff, nil
}

func (p *Provider) AddCommentToPullRequest(ctx context.Context, prID, body, filePath string, line *int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, err := p.get(prID)
	if err != nil {
		return err
	}
	c := Comment{Body: body, FilePath: filePath}
	if line != nil {
		n := *line
		c.Line = &n
	}
	pr.Comments = append(pr.Comments, c)
	return nil
}

func (p *Provider) SetPullRequestStatus(ctx context.Context, prID, state, description, targetURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, err := p.get(prID)
	if err != nil {
		return err
	}
	pr.Status = Status{State: state, Description: description, TargetURL: targetURL}
	return nil
}

func (p *Provider) GetPullRequestStatus(ctx context.Context, prID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, err := p.get(prID)
	if err != nil {
		return "", err
	}
	return pr.Status.State, nil
}

// PullRequest returns a snapshot of the stored pull request.
func (p *Provider) PullRequest(prID string) (PullRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.prs[prID]
	if !ok {
		return PullRequest{}, false
	}
	out := *pr
	out.Comments = slices.Clone(pr.Comments)
	return out, true
}

func (p *Provider) get(prID string) (*PullRequest, error) {
	pr, ok := p.prs[prID]
	if !ok {
		return nil, domain.NewNotFoundError("pull request", prID)
	}
	return pr, nil
}
