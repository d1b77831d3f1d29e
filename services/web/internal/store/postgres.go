package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/anitrack/internal/trending"
	"github.com/example/anitrack/services/web/internal/media"
)

// NewPostgresStores returns every store backed by one pool.
func NewPostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Profiles:    &PostgresProfiles{pool: pool},
		Media:       &PostgresMedia{pool: pool},
		Posts:       &PostgresPosts{pool: pool},
		Reviews:     &PostgresReviews{pool: pool},
		Logs:        &PostgresLogs{pool: pool},
		Marks:       &PostgresMarks{pool: pool},
		Completions: &PostgresCompletions{pool: pool},
		Trending:    trending.NewPostgresSource(pool),
	}
}

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

// validID rejects ids Postgres would refuse to parse as uuid.
func validID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}

// ─── profiles ───────────────────────────────────────────────────────────────

type PostgresProfiles struct {
	pool *pgxpool.Pool
}

const profileCols = `id, username, avatar_url, role, password_hash, created_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.Role, &p.PasswordHash, &p.CreatedAt)
	return p, mapErr(err)
}

func (s *PostgresProfiles) Create(ctx context.Context, p Profile) (Profile, error) {
	role := p.Role
	if role == "" {
		role = "user"
	}
	const q = `INSERT INTO profiles (username, avatar_url, password_hash, role)
	           VALUES ($1, $2, $3, $4)
	           RETURNING ` + profileCols
	return scanProfile(s.pool.QueryRow(ctx, q, p.Username, p.AvatarURL, p.PasswordHash, role))
}

func (s *PostgresProfiles) ByID(ctx context.Context, id string) (Profile, error) {
	if !validID(id) {
		return Profile{}, ErrNotFound
	}
	p, err := scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
	p.PasswordHash = ""
	return p, err
}

func (s *PostgresProfiles) ByUsername(ctx context.Context, username string) (Profile, error) {
	p, err := s.ByLogin(ctx, username)
	p.PasswordHash = ""
	return p, err
}

func (s *PostgresProfiles) ByLogin(ctx context.Context, login string) (Profile, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	return scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE username = $1`, login))
}

// ─── media ──────────────────────────────────────────────────────────────────

type PostgresMedia struct {
	pool *pgxpool.Pool
}

type kindTables struct {
	media, units, fk, count, cols string
}

var tablesByKind = map[media.Kind]kindTables{
	media.KindAnime: {
		media: "anime", units: "anime_episodes", fk: "anime_id", count: "episodes",
		cols: `id, slug, title, COALESCE(year, 0), COALESCE(episodes, 0), poster_url, COALESCE(tmdb_id, ''), COALESCE(tvdb_id, '')`,
	},
	media.KindManga: {
		media: "manga", units: "manga_chapters", fk: "manga_id", count: "chapters",
		cols: `id, slug, title, COALESCE(year, 0), COALESCE(chapters, 0), poster_url, '', ''`,
	},
}

func tablesFor(kind media.Kind) (kindTables, error) {
	t, ok := tablesByKind[kind]
	if !ok {
		return kindTables{}, fmt.Errorf("%w: kind %q", ErrNotFound, kind)
	}
	return t, nil
}

func scanMedia(kind media.Kind, row pgx.Row) (MediaItem, error) {
	m := MediaItem{Kind: kind}
	err := row.Scan(&m.ID, &m.Slug, &m.Title, &m.Year, &m.Units, &m.PosterURL, &m.TMDBID, &m.TVDBID)
	return m, mapErr(err)
}

func (s *PostgresMedia) BySlug(ctx context.Context, kind media.Kind, slug string) (MediaItem, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return MediaItem{}, err
	}
	return scanMedia(kind, s.pool.QueryRow(ctx, `SELECT `+t.cols+` FROM `+t.media+` WHERE slug = $1`, slug))
}

func (s *PostgresMedia) ByID(ctx context.Context, kind media.Kind, id string) (MediaItem, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return MediaItem{}, err
	}
	if !validID(id) {
		return MediaItem{}, ErrNotFound
	}
	return scanMedia(kind, s.pool.QueryRow(ctx, `SELECT `+t.cols+` FROM `+t.media+` WHERE id = $1`, id))
}

func (s *PostgresMedia) Unit(ctx context.Context, kind media.Kind, mediaID string, number int) (Unit, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return Unit{}, err
	}
	if !validID(mediaID) {
		return Unit{}, ErrNotFound
	}
	u := Unit{Kind: kind}
	q := `SELECT id, ` + t.fk + `, number, title FROM ` + t.units + ` WHERE ` + t.fk + ` = $1 AND number = $2`
	err = s.pool.QueryRow(ctx, q, mediaID, number).Scan(&u.ID, &u.MediaID, &u.Number, &u.Title)
	return u, mapErr(err)
}

func (s *PostgresMedia) UnitByID(ctx context.Context, kind media.Kind, unitID string) (Unit, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return Unit{}, err
	}
	if !validID(unitID) {
		return Unit{}, ErrNotFound
	}
	u := Unit{Kind: kind}
	q := `SELECT id, ` + t.fk + `, number, title FROM ` + t.units + ` WHERE id = $1`
	err = s.pool.QueryRow(ctx, q, unitID).Scan(&u.ID, &u.MediaID, &u.Number, &u.Title)
	return u, mapErr(err)
}

func (s *PostgresMedia) Tags(ctx context.Context, kind media.Kind, mediaID string) ([]string, error) {
	out := []string{}
	if !validID(mediaID) {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT tag FROM media_tags WHERE kind = $1 AND media_id = $2 ORDER BY tag`, string(kind), mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (s *PostgresMedia) Backdrops(ctx context.Context, kind media.Kind, mediaID string) ([]Backdrop, error) {
	out := []Backdrop{}
	if !validID(mediaID) {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT url, width, vote_average FROM media_backdrops WHERE kind = $1 AND media_id = $2`,
		string(kind), mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var b Backdrop
		if err := rows.Scan(&b.URL, &b.Width, &b.VoteAverage); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func (s *PostgresMedia) UpsertExternalLink(ctx context.Context, l ExternalLink) error {
	if !validID(l.AnimeID) {
		return ErrNotFound
	}
	const q = `INSERT INTO anime_external_links
	               (anime_id, source, external_id, title, year, episodes, confidence, matched_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	           ON CONFLICT (anime_id, source) DO UPDATE SET
	               external_id = EXCLUDED.external_id,
	               title       = EXCLUDED.title,
	               year        = EXCLUDED.year,
	               episodes    = EXCLUDED.episodes,
	               confidence  = EXCLUDED.confidence,
	               matched_at  = now()`
	_, err := s.pool.Exec(ctx, q, l.AnimeID, l.Source, l.ExternalID, l.Title,
		nullInt(l.Year), nullInt(l.Episodes), l.Confidence)
	return mapErr(err)
}

func (s *PostgresMedia) SetLegacyExternalID(ctx context.Context, animeID, source, externalID string) error {
	var col string
	switch source {
	case "tmdb":
		col = "tmdb_id"
	case "tvdb":
		col = "tvdb_id"
	default:
		return ErrNotFound
	}
	if !validID(animeID) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `UPDATE anime SET `+col+` = $1 WHERE id = $2`, externalID, animeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresMedia) ExternalLinks(ctx context.Context, animeID string) ([]ExternalLink, error) {
	out := []ExternalLink{}
	if !validID(animeID) {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT anime_id, source, external_id, title, COALESCE(year, 0), COALESCE(episodes, 0), confidence, matched_at
		 FROM anime_external_links WHERE anime_id = $1 ORDER BY source`, animeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ExternalLink
		if err := rows.Scan(&l.AnimeID, &l.Source, &l.ExternalID, &l.Title, &l.Year, &l.Episodes,
			&l.Confidence, &l.MatchedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresMedia) CreateMedia(ctx context.Context, m MediaItem) (MediaItem, error) {
	t, err := tablesFor(m.Kind)
	if err != nil {
		return MediaItem{}, err
	}
	q := `INSERT INTO ` + t.media + ` (slug, title, year, ` + t.count + `, poster_url)
	      VALUES ($1, $2, $3, $4, $5)
	      RETURNING ` + t.cols
	return scanMedia(m.Kind, s.pool.QueryRow(ctx, q, m.Slug, m.Title, nullInt(m.Year), nullInt(m.Units), m.PosterURL))
}

func (s *PostgresMedia) CreateUnit(ctx context.Context, u Unit) (Unit, error) {
	t, err := tablesFor(u.Kind)
	if err != nil {
		return Unit{}, err
	}
	if !validID(u.MediaID) {
		return Unit{}, ErrNotFound
	}
	q := `INSERT INTO ` + t.units + ` (` + t.fk + `, number, title) VALUES ($1, $2, $3) RETURNING id`
	err = s.pool.QueryRow(ctx, q, u.MediaID, u.Number, u.Title).Scan(&u.ID)
	return u, mapErr(err)
}

func (s *PostgresMedia) AddTags(ctx context.Context, kind media.Kind, mediaID string, tags ...string) error {
	if !validID(mediaID) {
		return ErrNotFound
	}
	batch := &pgx.Batch{}
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			batch.Queue(`INSERT INTO media_tags (kind, media_id, tag) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				string(kind), mediaID, tag)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PostgresMedia) AddBackdrop(ctx context.Context, kind media.Kind, mediaID string, b Backdrop) error {
	if !validID(mediaID) {
		return ErrNotFound
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO media_backdrops (kind, media_id, url, width, vote_average) VALUES ($1, $2, $3, $4, $5)`,
		string(kind), mediaID, b.URL, b.Width, b.VoteAverage)
	return mapErr(err)
}
