package domain

import "time"

type CommentType string

const (
	CommentTypeGeneral    CommentType = "general"
	CommentTypeLine       CommentType = "line"
	CommentTypeFile       CommentType = "file"
	CommentTypeDiscussion CommentType = "discussion"
)

type Comment struct {
	ID         string      `json:"id"`
	ReviewID   string      `json:"review_id,omitempty"`
	AuthorID   string      `json:"author_id"`
	Content    string      `json:"content"`
	ParentID   string      `json:"parent_id,omitempty"`
	FilePath   string      `json:"file_path,omitempty"`
	LineNumber *int        `json:"line_number,omitempty"`
	Type       CommentType `json:"comment_type"`
	IsResolved bool        `json:"is_resolved"`
	IsDeleted  bool        `json:"is_deleted"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewCommentParams holds the optional anchors of a new comment.
type NewCommentParams struct {
	ReviewID   string
	ParentID   string
	FilePath   string
	LineNumber *int
}

// CommentTypeFor derives the comment type from which anchors are set.
func CommentTypeFor(filePath string, lineNumber *int, parentID string) CommentType {
	switch {
	case filePath != "" && lineNumber != nil:
		return CommentTypeLine
	case filePath != "":
		return CommentTypeFile
	case parentID != "":
		return CommentTypeDiscussion
	default:
		return CommentTypeGeneral
	}
}

func NewComment(id, authorID, content string, p NewCommentParams, createdAt time.Time) (Comment, error) {
	if id == "" {
		return Comment{}, NewValidationError("comment id cannot be empty")
	}
	if content == "" {
		return Comment{}, NewValidationError("comment content cannot be empty")
	}
	if authorID == "" {
		return Comment{}, NewValidationError("comment author id cannot be empty")
	}
	if p.LineNumber != nil && *p.LineNumber < 0 {
		return Comment{}, NewValidationError("line number must be non-negative")
	}

	var line *int
	if p.LineNumber != nil {
		n := *p.LineNumber
		line = &n
	}

	return Comment{
		ID:         id,
		ReviewID:   p.ReviewID,
		AuthorID:   authorID,
		Content:    content,
		ParentID:   p.ParentID,
		FilePath:   p.FilePath,
		LineNumber: line,
		Type:       CommentTypeFor(p.FilePath, p.LineNumber, p.ParentID),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}, nil
}

func (c Comment) UpdateContent(content string, at time.Time) (Comment, error) {
	if content == "" {
		return c, NewValidationError("comment content cannot be empty")
	}
	c.Content = content
	c.UpdatedAt = at
	return c, nil
}

func (c Comment) Resolve(at time.Time) Comment {
	c.IsResolved = true
	c.UpdatedAt = at
	return c
}

func (c Comment) Unresolve(at time.Time) Comment {
	c.IsResolved = false
	c.UpdatedAt = at
	return c
}

func (c Comment) Delete(at time.Time) Comment {
	c.IsDeleted = true
	c.UpdatedAt = at
	return c
}

func (c Comment) IsReply() bool {
	return c.ParentID != ""
}
