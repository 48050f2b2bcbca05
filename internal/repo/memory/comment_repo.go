package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type commentEntry struct {
	comment domain.Comment
	seq     int
}

type CommentRepo struct {
	mu       sync.RWMutex
	comments map[string]commentEntry
	seq      int
}

func NewCommentRepo() *CommentRepo {
	return &CommentRepo{comments: make(map[string]commentEntry)}
}

func (r *CommentRepo) Save(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.comments[c.ID]
	if !ok {
		r.seq++
		entry.seq = r.seq
	}
	entry.comment = cloneComment(c)
	r.comments[c.ID] = entry
	return cloneComment(c), nil
}

func (r *CommentRepo) FindByID(ctx context.Context, id string) (domain.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.comments[id]
	if !ok {
		return domain.Comment{}, domain.NewNotFoundError("comment", id)
	}
	return cloneComment(entry.comment), nil
}

func (r *CommentRepo) FindByReview(ctx context.Context, reviewID string) ([]domain.Comment, error) {
	return r.filter(func(c domain.Comment) bool { return c.ReviewID == reviewID }), nil
}

func (r *CommentRepo) FindByAuthor(ctx context.Context, authorID string) ([]domain.Comment, error) {
	return r.filter(func(c domain.Comment) bool { return c.AuthorID == authorID }), nil
}

func (r *CommentRepo) FindByParent(ctx context.Context, parentID string) ([]domain.Comment, error) {
	return r.filter(func(c domain.Comment) bool { return c.ParentID == parentID }), nil
}

// filter returns matching, non-deleted comments in insertion order.
func (r *CommentRepo) filter(keep func(domain.Comment) bool) []domain.Comment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]commentEntry, 0)
	for _, entry := range r.comments {
		if !entry.comment.IsDeleted && keep(entry.comment) {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b commentEntry) int { return a.seq - b.seq })

	out := make([]domain.Comment, 0, len(entries))
	for _, entry := range entries {
		out = append(out, cloneComment(entry.comment))
	}
	return out
}

func cloneComment(c domain.Comment) domain.Comment {
	if c.LineNumber != nil {
		v := *c.LineNumber
		c.LineNumber = &v
	}
	return c
}
