package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewFilter_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		filter  ReviewFilter
		wantErr bool
		want    ReviewFilter
	}{
		{
			name: "defaults",
			want: ReviewFilter{Limit: DefaultPageLimit, SortBy: SortByCreatedAt, SortOrder: SortDesc},
		},
		{name: "negative skip", filter: ReviewFilter{Skip: -1}, wantErr: true},
		{name: "limit too large", filter: ReviewFilter{Limit: 101}, wantErr: true},
		{name: "negative limit", filter: ReviewFilter{Limit: -5}, wantErr: true},
		{name: "bad sort field", filter: ReviewFilter{SortBy: "title"}, wantErr: true},
		{name: "bad sort order", filter: ReviewFilter{SortOrder: "up"}, wantErr: true},
		{
			name:   "explicit values kept",
			filter: ReviewFilter{Skip: 10, Limit: 100, SortBy: SortByPriority, SortOrder: SortAsc, Query: "  auth "},
			want:   ReviewFilter{Skip: 10, Limit: 100, SortBy: SortByPriority, SortOrder: SortAsc, Query: "auth"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReview_MatchesText(t *testing.T) {
	r := newTestReview(t)
	r.Title = "Add authentication"

	assert.True(t, r.MatchesText("authentication"))
	assert.True(t, r.MatchesText("AUTHENTICATION"))
	assert.True(t, r.MatchesText("feature/x"))
	assert.False(t, r.MatchesText("migration"))
}
