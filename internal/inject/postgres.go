package inject

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// PostgresRecentSource reads freshly created posts for injection.
type PostgresRecentSource struct {
	db *sql.DB
}

// NewPostgresRecentSource creates a Postgres-backed recent-post source.
func NewPostgresRecentSource(db *sql.DB) *PostgresRecentSource {
	return &PostgresRecentSource{db: db}
}

// PostsCreatedAfter returns top-level posts created strictly after the given
// instant, newest first.
func (s *PostgresRecentSource) PostsCreatedAfter(ctx context.Context, after time.Time, limit int) ([]feed.Candidate, error) {
	const query = `
		SELECT p.id, p.author_id, COALESCE(p.space_id::text, ''),
		       p.content, p.post_type, p.created_at,
		       p.like_count, p.reply_count, p.has_media, p.has_poll,
		       u.name, COALESCE(u.avatar_url, ''), u.verified, u.follower_count
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.created_at > $1
		  AND p.deleted_at IS NULL
		  AND p.parent_id IS NULL
		ORDER BY p.created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent posts: %w", err)
	}
	defer rows.Close()

	var out []feed.Candidate
	for rows.Next() {
		var c feed.Candidate
		if err := rows.Scan(
			&c.ID, &c.AuthorID, &c.SpaceID,
			&c.Content, &c.Type, &c.CreatedAt,
			&c.LikeCount, &c.ReplyCount, &c.HasMedia, &c.HasPoll,
			&c.AuthorName, &c.AuthorAvatarURL, &c.AuthorVerified, &c.AuthorFollowerCount,
		); err != nil {
			return nil, fmt.Errorf("scan recent post: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent posts: %w", err)
	}
	return out, nil
}
