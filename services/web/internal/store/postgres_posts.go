package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/anitrack/services/web/internal/media"
)

// PostgresPosts persists posts, likes and comments. Counts are always
// derived from post_likes and post_comments, never stored.
type PostgresPosts struct {
	pool *pgxpool.Pool
}

const postCols = `p.id, p.user_id, pr.username, pr.avatar_url, p.content,
	COALESCE(p.media_kind, ''), COALESCE(p.media_id::text, ''), p.created_at, p.updated_at`

const postFrom = ` FROM posts p JOIN profiles pr ON pr.id = p.user_id `

// postFromCTE reads the row produced by a data-modifying CTE named p.
const postFromCTE = ` FROM p JOIN profiles pr ON pr.id = p.user_id`

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	var kind string
	err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.AvatarURL, &p.Content,
		&kind, &p.MediaID, &p.CreatedAt, &p.UpdatedAt)
	p.MediaKind = media.Kind(kind)
	return p, mapErr(err)
}

func (s *PostgresPosts) scanPosts(ctx context.Context, q string, args ...any) ([]Post, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostgresPosts) Create(ctx context.Context, p Post) (Post, error) {
	if p.MediaID != "" && !validID(p.MediaID) {
		return Post{}, ErrNotFound
	}
	const q = `WITH p AS (
	               INSERT INTO posts (user_id, content, media_kind, media_id)
	               VALUES ($1, $2, $3, $4)
	               RETURNING *
	           )
	           SELECT ` + postCols + postFromCTE
	return scanPost(s.pool.QueryRow(ctx, q, p.UserID, p.Content, nullString(string(p.MediaKind)), nullString(p.MediaID)))
}

func (s *PostgresPosts) ByID(ctx context.Context, id string) (Post, error) {
	if !validID(id) {
		return Post{}, ErrNotFound
	}
	return scanPost(s.pool.QueryRow(ctx, `SELECT `+postCols+postFrom+`WHERE p.id = $1`, id))
}

func (s *PostgresPosts) Update(ctx context.Context, postID, userID, content string) (Post, error) {
	if !validID(postID, userID) {
		return Post{}, ErrNotFoundOrForbidden
	}
	const q = `WITH p AS (
	               UPDATE posts SET content = $1, updated_at = now()
	               WHERE id = $2 AND user_id = $3
	               RETURNING *
	           )
	           SELECT ` + postCols + postFromCTE
	p, err := scanPost(s.pool.QueryRow(ctx, q, content, postID, userID))
	if errors.Is(err, ErrNotFound) {
		return Post{}, ErrNotFoundOrForbidden
	}
	return p, err
}

func (s *PostgresPosts) Delete(ctx context.Context, postID, userID string) error {
	if !validID(postID, userID) {
		return ErrNotFoundOrForbidden
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFoundOrForbidden
	}
	return nil
}

func (s *PostgresPosts) page(ctx context.Context, where string, args []any, cursor string, limit int) ([]Post, string, error) {
	limit = ClampLimit(limit)
	q := `SELECT ` + postCols + postFrom + `WHERE ` + where
	if cursor != "" {
		ct, cid, err := parseCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		if !validID(cid) {
			return nil, "", ErrBadCursor
		}
		args = append(args, ct, cid)
		q += ` AND (p.created_at, p.id) < ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}
	args = append(args, limit+1)
	q += ` ORDER BY p.created_at DESC, p.id DESC LIMIT $` + strconv.Itoa(len(args))

	posts, err := s.scanPosts(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(posts) > limit {
		last := posts[limit-1]
		next = encodeCursor(last.CreatedAt, last.ID)
		posts = posts[:limit]
	}
	return posts, next, nil
}

func (s *PostgresPosts) List(ctx context.Context, cursor string, limit int) ([]Post, string, error) {
	return s.page(ctx, `TRUE`, nil, cursor, limit)
}

func (s *PostgresPosts) ListByUser(ctx context.Context, userID, cursor string, limit int) ([]Post, string, error) {
	if !validID(userID) {
		return []Post{}, "", nil
	}
	return s.page(ctx, `p.user_id = $1`, []any{userID}, cursor, limit)
}

func (s *PostgresPosts) ListForMedia(ctx context.Context, kind media.Kind, mediaID string, limit int) ([]Post, error) {
	if !validID(mediaID) {
		return []Post{}, nil
	}
	posts, _, err := s.page(ctx, `p.media_kind = $1 AND p.media_id = $2`, []any{string(kind), mediaID}, "", limit)
	return posts, err
}

func (s *PostgresPosts) Like(ctx context.Context, postID, userID string) error {
	if !validID(postID, userID) {
		return ErrNotFound
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, postID, userID)
	return mapErr(err)
}

func (s *PostgresPosts) Unlike(ctx context.Context, postID, userID string) error {
	if !validID(postID, userID) {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
	return err
}

func (s *PostgresPosts) countBy(ctx context.Context, q string, postIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(postIDs))
	for _, id := range postIDs {
		out[id] = 0
	}
	ids := validIDs(postIDs)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *PostgresPosts) LikeCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	return s.countBy(ctx,
		`SELECT post_id, count(*) FROM post_likes WHERE post_id = ANY($1::uuid[]) GROUP BY post_id`, postIDs)
}

func (s *PostgresPosts) ReplyCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	return s.countBy(ctx,
		`SELECT post_id, count(*) FROM post_comments
		 WHERE post_id = ANY($1::uuid[]) AND parent_comment_id IS NULL
		 GROUP BY post_id`, postIDs)
}

func (s *PostgresPosts) LikedBy(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(postIDs))
	ids := validIDs(postIDs)
	if !validID(userID) || len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT post_id FROM post_likes WHERE user_id = $1 AND post_id = ANY($2::uuid[])`, userID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

const commentCols = `c.id, c.post_id, c.user_id, pr.username, c.parent_comment_id, c.content, c.created_at`

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.PostID, &c.UserID, &c.Username, &c.ParentID, &c.Content, &c.CreatedAt)
	return c, mapErr(err)
}

func (s *PostgresPosts) CreateComment(ctx context.Context, c Comment) (Comment, error) {
	if !validID(c.PostID, c.UserID) || (c.ParentID != nil && !validID(*c.ParentID)) {
		return Comment{}, ErrNotFound
	}
	// The parent must belong to the same post.
	const q = `WITH c AS (
	               INSERT INTO post_comments (post_id, user_id, parent_comment_id, content)
	               SELECT $1, $2, $3, $4
	               WHERE $3::uuid IS NULL
	                  OR EXISTS (SELECT 1 FROM post_comments WHERE id = $3 AND post_id = $1)
	               RETURNING *
	           )
	           SELECT ` + commentCols + ` FROM c JOIN profiles pr ON pr.id = c.user_id`
	return scanComment(s.pool.QueryRow(ctx, q, c.PostID, c.UserID, c.ParentID, c.Content))
}

func (s *PostgresPosts) Comments(ctx context.Context, postID string) ([]Comment, error) {
	out := []Comment{}
	if !validID(postID) {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+commentCols+` FROM post_comments c JOIN profiles pr ON pr.id = c.user_id
		 WHERE c.post_id = $1 ORDER BY c.created_at ASC, c.id ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
