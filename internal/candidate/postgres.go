package candidate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// PostgresSource calls the get_feed_candidates database function, which
// returns denormalized candidate rows with author and social fields already
// joined in.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a Postgres-backed primary candidate source.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// FeedCandidates invokes get_feed_candidates(viewer, limit, max_age_hours).
func (s *PostgresSource) FeedCandidates(ctx context.Context, viewerID string, limit int, maxAge time.Duration) ([]feed.Candidate, error) {
	const query = `
		SELECT post_id, author_id, space_id, content, post_type, created_at,
		       like_count, reply_count, has_media, has_poll,
		       author_name, author_avatar_url, author_verified, author_follower_count,
		       is_following, is_friend_of_friend
		FROM get_feed_candidates($1, $2, $3)`

	rows, err := s.db.QueryContext(ctx, query, viewerID, limit, int(maxAge.Hours()))
	if err != nil {
		return nil, fmt.Errorf("get_feed_candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// PostgresGraphStore backs the fallback path with direct table queries.
type PostgresGraphStore struct {
	db *sql.DB
}

// NewPostgresGraphStore creates a Postgres-backed fallback store.
func NewPostgresGraphStore(db *sql.DB) *PostgresGraphStore {
	return &PostgresGraphStore{db: db}
}

// Following returns the user ids the viewer follows.
func (s *PostgresGraphStore) Following(ctx context.Context, viewerID string) ([]string, error) {
	const query = `SELECT followee_id FROM follows WHERE follower_id = $1`

	rows, err := s.db.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query follows: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follow row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SeenPostIDs returns post ids already served to the viewer.
func (s *PostgresGraphStore) SeenPostIDs(ctx context.Context, viewerID string) ([]string, error) {
	const query = `SELECT post_id FROM seen_posts WHERE user_id = $1`

	rows, err := s.db.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query seen posts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen post row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecentPosts returns recent non-deleted top-level posts with author fields
// joined, excluding the viewer's own authorship. No age cutoff: the
// fallback deliberately reaches back further than the primary query so
// sparse accounts still fill a pool.
func (s *PostgresGraphStore) RecentPosts(ctx context.Context, excludeAuthorID string, limit int) ([]feed.Candidate, error) {
	const query = `
		SELECT p.id, p.author_id, p.space_id, p.content, p.post_type, p.created_at,
		       0 AS like_count, p.reply_count, p.has_media, p.has_poll,
		       u.name, u.avatar_url, u.verified, u.follower_count,
		       FALSE, FALSE
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.deleted_at IS NULL
		  AND p.parent_id IS NULL
		  AND p.author_id <> $1
		ORDER BY p.created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, excludeAuthorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent posts: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// LikeCounts batch-fetches like counts for the given post ids.
func (s *PostgresGraphStore) LikeCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	const query = `
		SELECT post_id, COUNT(*)
		FROM post_likes
		WHERE post_id = ANY($1)
		GROUP BY post_id`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("query like counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int, len(postIDs))
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan like count row: %w", err)
		}
		out[id] = count
	}
	return out, rows.Err()
}

func scanCandidates(rows *sql.Rows) ([]feed.Candidate, error) {
	var out []feed.Candidate
	for rows.Next() {
		var (
			c         feed.Candidate
			spaceID   sql.NullString
			avatarURL sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.AuthorID, &spaceID, &c.Content, &c.Type, &c.CreatedAt,
			&c.LikeCount, &c.ReplyCount, &c.HasMedia, &c.HasPoll,
			&c.AuthorName, &avatarURL, &c.AuthorVerified, &c.AuthorFollowerCount,
			&c.IsFollowing, &c.IsFriendOfFriend,
		); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		c.SpaceID = spaceID.String
		c.AuthorAvatarURL = avatarURL.String
		out = append(out, c)
	}
	return out, rows.Err()
}
