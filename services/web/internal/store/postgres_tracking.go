package store

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/anitrack/services/web/internal/media"
)

// ─── reviews ────────────────────────────────────────────────────────────────

type PostgresReviews struct {
	pool *pgxpool.Pool
}

const reviewCols = `r.id, r.user_id, pr.username, r.kind, r.media_id, r.unit_id, r.rating, r.content,
	r.contains_spoilers, r.visibility, r.author_liked, r.created_at`

func scanReview(row pgx.Row) (Review, error) {
	var r Review
	var kind, vis string
	err := row.Scan(&r.ID, &r.UserID, &r.Username, &kind, &r.MediaID, &r.UnitID, &r.Rating, &r.Content,
		&r.ContainsSpoilers, &vis, &r.AuthorLiked, &r.CreatedAt)
	r.Kind = media.Kind(kind)
	r.Visibility = media.Visibility(vis)
	return r, mapErr(err)
}

func (s *PostgresReviews) scanReviews(ctx context.Context, q string, args ...any) ([]Review, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresReviews) Create(ctx context.Context, r Review) (Review, error) {
	if !validID(r.UserID, r.MediaID) || (r.UnitID != nil && !validID(*r.UnitID)) {
		return Review{}, ErrNotFound
	}
	const q = `WITH r AS (
	               INSERT INTO reviews (user_id, kind, media_id, unit_id, rating, content,
	                                    contains_spoilers, visibility, author_liked)
	               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	               RETURNING *
	           )
	           SELECT ` + reviewCols + ` FROM r JOIN profiles pr ON pr.id = r.user_id`
	return scanReview(s.pool.QueryRow(ctx, q, r.UserID, string(r.Kind), r.MediaID, r.UnitID, r.Rating,
		r.Content, r.ContainsSpoilers, string(r.Visibility), r.AuthorLiked))
}

func (s *PostgresReviews) ByID(ctx context.Context, id string) (Review, error) {
	if !validID(id) {
		return Review{}, ErrNotFound
	}
	return scanReview(s.pool.QueryRow(ctx,
		`SELECT `+reviewCols+` FROM reviews r JOIN profiles pr ON pr.id = r.user_id WHERE r.id = $1`, id))
}

// visibleTo filters for the viewer bound at the given placeholder.
func visibleTo(alias string, arg int) string {
	return `(` + alias + `.visibility = 'public' OR ` + alias + `.user_id::text = $` + strconv.Itoa(arg) + `)`
}

func (s *PostgresReviews) ListForMedia(ctx context.Context, kind media.Kind, mediaID string, unitID *string, viewerID string, limit int) ([]Review, error) {
	if !validID(mediaID) || (unitID != nil && !validID(*unitID)) {
		return []Review{}, nil
	}
	q := `SELECT ` + reviewCols + ` FROM reviews r JOIN profiles pr ON pr.id = r.user_id
	      WHERE r.kind = $1 AND r.media_id = $2 AND ` + visibleTo("r", 3) + `
	        AND r.unit_id IS NOT DISTINCT FROM $4::uuid
	      ORDER BY r.created_at DESC, r.id DESC LIMIT $5`
	return s.scanReviews(ctx, q, string(kind), mediaID, viewerID, unitID, ClampLimit(limit))
}

func (s *PostgresReviews) ListByUser(ctx context.Context, userID, viewerID string, limit int) ([]Review, error) {
	if !validID(userID) {
		return []Review{}, nil
	}
	q := `SELECT ` + reviewCols + ` FROM reviews r JOIN profiles pr ON pr.id = r.user_id
	      WHERE r.user_id = $1 AND ` + visibleTo("r", 2) + `
	      ORDER BY r.created_at DESC, r.id DESC LIMIT $3`
	return s.scanReviews(ctx, q, userID, viewerID, ClampLimit(limit))
}

func (s *PostgresReviews) Engagement(ctx context.Context, userID string, kind media.Kind, mediaID string) (Engagement, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return Engagement{}, err
	}
	if !validID(userID, mediaID) {
		return Engagement{}, nil
	}
	q := `SELECT
	        (SELECT count(*) FROM reviews WHERE user_id = $1 AND kind = $2 AND media_id = $3)::int,
	        (SELECT count(*) FROM marks mk
	          WHERE mk.user_id = $1 AND mk.mark = 'rating'
	            AND ((mk.target_type = $2 AND mk.target_id = $3)
	              OR (mk.target_type = $4 AND mk.target_id IN (SELECT u.id FROM ` + t.units + ` u WHERE u.` + t.fk + ` = $3))))::int`
	var e Engagement
	err = s.pool.QueryRow(ctx, q, userID, string(kind), mediaID, string(kind.UnitTarget())).Scan(&e.Reviewed, &e.Rated)
	return e, mapErr(err)
}

// ─── logs ───────────────────────────────────────────────────────────────────

type PostgresLogs struct {
	pool *pgxpool.Pool
}

const logCols = `l.id, l.user_id, l.kind, l.media_id, COALESCE(a.slug, mg.slug, ''), COALESCE(a.title, mg.title, ''),
	l.unit_id, l.rating, l.note, l.visibility, l.liked, l.logged_at, l.review_id`

const logJoins = ` LEFT JOIN anime a ON l.kind = 'anime' AND a.id = l.media_id
	LEFT JOIN manga mg ON l.kind = 'manga' AND mg.id = l.media_id `

func scanLog(row pgx.Row) (LogEntry, error) {
	var l LogEntry
	var kind, vis string
	err := row.Scan(&l.ID, &l.UserID, &kind, &l.MediaID, &l.MediaSlug, &l.MediaTitle,
		&l.UnitID, &l.Rating, &l.Note, &vis, &l.Liked, &l.LoggedAt, &l.ReviewID)
	l.Kind = media.Kind(kind)
	l.Visibility = media.Visibility(vis)
	return l, mapErr(err)
}

func (s *PostgresLogs) scanLogs(ctx context.Context, q string, args ...any) ([]LogEntry, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LogEntry{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresLogs) Create(ctx context.Context, l LogEntry) (LogEntry, error) {
	if !validID(l.UserID, l.MediaID) || (l.UnitID != nil && !validID(*l.UnitID)) || (l.ReviewID != nil && !validID(*l.ReviewID)) {
		return LogEntry{}, ErrNotFound
	}
	var loggedAt *time.Time
	if !l.LoggedAt.IsZero() {
		loggedAt = &l.LoggedAt
	}
	q := `WITH l AS (
	          INSERT INTO logs (user_id, kind, media_id, unit_id, rating, note, visibility, liked, logged_at, review_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), $10)
	          RETURNING *
	      )
	      SELECT ` + logCols + ` FROM l` + logJoins
	return scanLog(s.pool.QueryRow(ctx, q, l.UserID, string(l.Kind), l.MediaID, l.UnitID, l.Rating, l.Note,
		string(l.Visibility), l.Liked, loggedAt, l.ReviewID))
}

func (s *PostgresLogs) ListByUser(ctx context.Context, userID, viewerID, cursor string, limit int) ([]LogEntry, string, error) {
	limit = ClampLimit(limit)
	if !validID(userID) {
		return []LogEntry{}, "", nil
	}
	args := []any{userID, viewerID}
	q := `SELECT ` + logCols + ` FROM logs l` + logJoins + `WHERE l.user_id = $1 AND ` + visibleTo("l", 2)
	if cursor != "" {
		ct, cid, err := parseCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		if !validID(cid) {
			return nil, "", ErrBadCursor
		}
		args = append(args, ct, cid)
		q += ` AND (l.logged_at, l.id) < ($3, $4)`
	}
	args = append(args, limit+1)
	q += ` ORDER BY l.logged_at DESC, l.id DESC LIMIT $` + strconv.Itoa(len(args))

	out, err := s.scanLogs(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		last := out[limit-1]
		next = encodeCursor(last.LoggedAt, last.ID)
		out = out[:limit]
	}
	return out, next, nil
}

func (s *PostgresLogs) ListForMedia(ctx context.Context, userID string, kind media.Kind, mediaID string) ([]LogEntry, error) {
	if !validID(userID, mediaID) {
		return []LogEntry{}, nil
	}
	q := `SELECT ` + logCols + ` FROM logs l` + logJoins + `
	      WHERE l.user_id = $1 AND l.kind = $2 AND l.media_id = $3
	      ORDER BY l.logged_at DESC, l.id DESC`
	return s.scanLogs(ctx, q, userID, string(kind), mediaID)
}

// ─── marks ──────────────────────────────────────────────────────────────────

type PostgresMarks struct {
	pool *pgxpool.Pool
}

const markCols = `user_id, target_type, target_id, mark, stars, created_at`

func scanMark(row pgx.Row) (Mark, error) {
	var m Mark
	var tt string
	err := row.Scan(&m.UserID, &tt, &m.TargetID, &m.Mark, &m.Stars, &m.CreatedAt)
	m.TargetType = media.TargetType(tt)
	return m, mapErr(err)
}

func (s *PostgresMarks) Set(ctx context.Context, m Mark) (Mark, error) {
	if !validID(m.UserID, m.TargetID) {
		return Mark{}, ErrNotFound
	}
	const q = `INSERT INTO marks (user_id, target_type, target_id, mark, stars)
	           VALUES ($1, $2, $3, $4, $5)
	           ON CONFLICT (user_id, target_type, target_id, mark)
	           DO UPDATE SET stars = EXCLUDED.stars, created_at = now()
	           RETURNING ` + markCols
	return scanMark(s.pool.QueryRow(ctx, q, m.UserID, string(m.TargetType), m.TargetID, m.Mark, m.Stars))
}

func (s *PostgresMarks) Clear(ctx context.Context, userID string, targetType media.TargetType, targetID, mark string) error {
	if !validID(userID, targetID) {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM marks WHERE user_id = $1 AND target_type = $2 AND target_id = $3 AND mark = $4`,
		userID, string(targetType), targetID, mark)
	return err
}

func (s *PostgresMarks) scanMarks(ctx context.Context, q string, args ...any) ([]Mark, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Mark{}
	for rows.Next() {
		m, err := scanMark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresMarks) ForTarget(ctx context.Context, userID string, targetType media.TargetType, targetID string) ([]Mark, error) {
	if !validID(userID, targetID) {
		return []Mark{}, nil
	}
	return s.scanMarks(ctx, `SELECT `+markCols+` FROM marks
		WHERE user_id = $1 AND target_type = $2 AND target_id = $3 ORDER BY mark`,
		userID, string(targetType), targetID)
}

func (s *PostgresMarks) ForUserMedia(ctx context.Context, userID string, kind media.Kind, mediaID string) ([]Mark, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	if !validID(userID, mediaID) {
		return []Mark{}, nil
	}
	q := `SELECT ` + markCols + ` FROM marks
	      WHERE user_id = $1
	        AND ((target_type = $2 AND target_id = $3)
	          OR (target_type = $4 AND target_id IN (SELECT u.id FROM ` + t.units + ` u WHERE u.` + t.fk + ` = $3)))
	      ORDER BY target_type, target_id, mark`
	return s.scanMarks(ctx, q, userID, string(kind), mediaID, string(kind.UnitTarget()))
}

// ─── completions ────────────────────────────────────────────────────────────

type PostgresCompletions struct {
	pool *pgxpool.Pool
}

// seenUnitsSQL counts distinct units watched via unit marks or unit logs for
// media m.id, with $1 user, $2 kind, $3 unit target type.
func seenUnitsSQL(t kindTables) string {
	return `(SELECT count(DISTINCT x.unit_id) FROM (
	            SELECT mk.target_id AS unit_id FROM marks mk JOIN ` + t.units + ` u ON u.id = mk.target_id
	             WHERE mk.user_id = $1 AND mk.target_type = $3 AND mk.mark = 'watched' AND u.` + t.fk + ` = m.id
	            UNION
	            SELECT l.unit_id FROM logs l
	             WHERE l.user_id = $1 AND l.kind = $2 AND l.media_id = m.id AND l.unit_id IS NOT NULL
	        ) x)::int`
}

func totalUnitsSQL(t kindTables) string {
	return `COALESCE(NULLIF(m.` + t.count + `, 0), (SELECT count(*) FROM ` + t.units + ` u WHERE u.` + t.fk + ` = m.id))::int`
}

const seriesWatchedSQL = `EXISTS (SELECT 1 FROM marks
	WHERE user_id = $1 AND target_type = $2 AND target_id = m.id AND mark = 'watched')`

func (s *PostgresCompletions) Progress(ctx context.Context, userID string, kind media.Kind, mediaID string) (Progress, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return Progress{}, err
	}
	if !validID(mediaID) {
		return Progress{}, ErrNotFound
	}
	if !validID(userID) {
		userID = "00000000-0000-0000-0000-000000000000"
	}
	q := `SELECT ` + totalUnitsSQL(t) + `, ` + seenUnitsSQL(t) + `, ` + seriesWatchedSQL + `
	      FROM ` + t.media + ` m WHERE m.id = $4`
	var total, seen int
	var done bool
	err = s.pool.QueryRow(ctx, q, userID, string(kind), string(kind.UnitTarget()), mediaID).Scan(&total, &seen, &done)
	if err != nil {
		return Progress{}, mapErr(err)
	}
	return ResolveProgress(total, seen, done), nil
}

func (s *PostgresCompletions) List(ctx context.Context, userID string) ([]CompletionRow, error) {
	out := []CompletionRow{}
	if !validID(userID) {
		return out, nil
	}
	for _, kind := range []media.Kind{media.KindAnime, media.KindManga} {
		rows, err := s.listKind(ctx, userID, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *PostgresCompletions) listKind(ctx context.Context, userID string, kind media.Kind) ([]CompletionRow, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := `WITH touched AS (
	          SELECT media_id, max(at) AS at FROM (
	              SELECT mk.target_id AS media_id, mk.created_at AS at FROM marks mk
	               WHERE mk.user_id = $1 AND mk.target_type = $2
	              UNION ALL
	              SELECT u.` + t.fk + `, mk.created_at FROM marks mk JOIN ` + t.units + ` u ON u.id = mk.target_id
	               WHERE mk.user_id = $1 AND mk.target_type = $3
	              UNION ALL
	              SELECT l.media_id, l.logged_at FROM logs l WHERE l.user_id = $1 AND l.kind = $2
	              UNION ALL
	              SELECT r.media_id, r.created_at FROM reviews r WHERE r.user_id = $1 AND r.kind = $2
	          ) t GROUP BY media_id
	      )
	      SELECT m.id, m.slug, m.title, m.poster_url,
	             ` + totalUnitsSQL(t) + `,
	             ` + seenUnitsSQL(t) + `,
	             ` + seriesWatchedSQL + `,
	             (SELECT count(*) FROM reviews r WHERE r.user_id = $1 AND r.kind = $2 AND r.media_id = m.id)::int,
	             (SELECT count(*) FROM marks mk WHERE mk.user_id = $1 AND mk.mark = 'rating'
	                 AND ((mk.target_type = $2 AND mk.target_id = m.id)
	                   OR (mk.target_type = $3 AND mk.target_id IN (SELECT u.id FROM ` + t.units + ` u WHERE u.` + t.fk + ` = m.id))))::int,
	             touched.at
	      FROM touched JOIN ` + t.media + ` m ON m.id = touched.media_id
	      ORDER BY touched.at DESC, m.id DESC`
	rows, err := s.pool.Query(ctx, q, userID, string(kind), string(kind.UnitTarget()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CompletionRow
	for rows.Next() {
		r := CompletionRow{Kind: kind}
		var total, seen int
		var done bool
		if err := rows.Scan(&r.MediaID, &r.Slug, &r.Title, &r.PosterURL, &total, &seen, &done,
			&r.Reviewed, &r.Rated, &r.UpdatedAt); err != nil {
			return nil, err
		}
		p := ResolveProgress(total, seen, done)
		r.Current, r.Total = p.Current, p.Total
		out = append(out, r)
	}
	return out, rows.Err()
}
