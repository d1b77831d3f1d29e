// Command seed fills a development database with fake users, anime, manga
// and activity.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/example/anitrack/internal/platform/config"
	"github.com/example/anitrack/internal/platform/db"
	"github.com/example/anitrack/internal/platform/logging"
	"github.com/example/anitrack/internal/platform/migrate"
	"github.com/example/anitrack/internal/slug"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/store"
	"github.com/example/anitrack/services/web/migrations"
)

const seedPassword = "password123"

type options struct {
	Users, Anime, Manga, Posts, Logs int
	Seed                             int64
	Concurrency                      int
}

func main() {
	var opts options
	flag.IntVar(&opts.Users, "users", 20, "profiles to create")
	flag.IntVar(&opts.Anime, "anime", 15, "anime to create")
	flag.IntVar(&opts.Manga, "manga", 10, "manga to create")
	flag.IntVar(&opts.Posts, "posts", 60, "posts to create")
	flag.IntVar(&opts.Logs, "logs", 200, "log entries to create")
	flag.Int64Var(&opts.Seed, "seed", 42, "faker seed")
	flag.IntVar(&opts.Concurrency, "concurrency", 8, "parallel inserts")
	runMigrations := flag.Bool("migrate", true, "apply migrations first")
	flag.Parse()

	v := config.NewViper()
	v.SetDefault("LOG_LEVEL", "info")
	log, err := logging.New(v.GetString("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	dsn := v.GetString("DATABASE_URL")
	if *runMigrations {
		if err := migrate.Up(ctx, dsn, migrations.FS, log); err != nil {
			log.Error("migrate", zap.Error(err))
			os.Exit(1)
		}
	}
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		log.Error("open database", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	s := &seeder{stores: store.NewPostgresStores(pool), faker: gofakeit.New(opts.Seed), log: log, opts: opts}
	if err := s.run(ctx); err != nil {
		log.Error("seed failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("seed done", zap.Int("users", len(s.users)), zap.Int("media", len(s.media)), zap.String("password", seedPassword))
}

type seeder struct {
	stores store.Stores
	faker  *gofakeit.Faker
	log    *zap.Logger
	opts   options

	users []store.Profile
	media []seededMedia
}

type seededMedia struct {
	item  store.MediaItem
	units []store.Unit
}

var tagPool = []string{"action", "adventure", "comedy", "drama", "fantasy", "mecha", "mystery", "romance", "sci-fi", "slice of life", "sports", "thriller"}

func (s *seeder) run(ctx context.Context) error {
	if err := s.seedUsers(ctx); err != nil {
		return err
	}
	if err := s.seedMedia(ctx, media.KindAnime, s.opts.Anime, 6, 26); err != nil {
		return err
	}
	if err := s.seedMedia(ctx, media.KindManga, s.opts.Manga, 10, 60); err != nil {
		return err
	}
	if len(s.users) == 0 || len(s.media) == 0 {
		return nil
	}
	if err := s.seedPosts(ctx); err != nil {
		return err
	}
	return s.seedActivity(ctx)
}

func (s *seeder) username(i int) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, strings.ToLower(s.faker.Username()))
	if len(name) > 24 {
		name = name[:24]
	}
	return fmt.Sprintf("%s_%d", name, i)
}

func (s *seeder) seedUsers(ctx context.Context) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}
	for i := 0; i < s.opts.Users; i++ {
		p, err := s.stores.Profiles.Create(ctx, store.Profile{
			Username:     slug.CanonicalUsername(s.username(i)),
			AvatarURL:    s.faker.ImageURL(128, 128),
			PasswordHash: string(hash),
		})
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		s.users = append(s.users, p)
	}
	s.log.Info("seeded profiles", zap.Int("count", len(s.users)))
	return nil
}

func (s *seeder) title() string {
	words := []string{s.faker.AdjectiveDescriptive(), s.faker.Noun()}
	if s.faker.Bool() {
		words = append(words, s.faker.Verb())
	}
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (s *seeder) seedMedia(ctx context.Context, kind media.Kind, n, minUnits, maxUnits int) error {
	for i := 0; i < n; i++ {
		title := s.title()
		units := s.faker.Number(minUnits, maxUnits)
		m, err := s.stores.Media.CreateMedia(ctx, store.MediaItem{
			Kind:      kind,
			Slug:      fmt.Sprintf("%s-%d", slug.Slugify(title), i+1),
			Title:     title,
			Year:      s.faker.Number(1990, 2025),
			Units:     units,
			PosterURL: s.faker.ImageURL(342, 513),
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", kind, err)
		}
		sm := seededMedia{item: m}
		for num := 1; num <= units; num++ {
			u, err := s.stores.Media.CreateUnit(ctx, store.Unit{
				Kind: kind, MediaID: m.ID, Number: num, Title: s.faker.Sentence(3),
			})
			if err != nil {
				return fmt.Errorf("create %s: %w", kind.Unit(), err)
			}
			sm.units = append(sm.units, u)
		}
		tags := make([]string, 0, 3)
		for j := 0; j < 3; j++ {
			tags = append(tags, s.faker.RandomString(tagPool))
		}
		if err := s.stores.Media.AddTags(ctx, kind, m.ID, tags...); err != nil {
			return fmt.Errorf("add tags: %w", err)
		}
		for j := 0; j < s.faker.Number(0, 4); j++ {
			w := s.faker.RandomInt([]int{1280, 1920, 3840})
			b := store.Backdrop{URL: s.faker.ImageURL(w, w*9/16), Width: w, VoteAverage: s.faker.Float64Range(3, 9)}
			if err := s.stores.Media.AddBackdrop(ctx, kind, m.ID, b); err != nil {
				return fmt.Errorf("add backdrop: %w", err)
			}
		}
		s.media = append(s.media, sm)
	}
	s.log.Info("seeded media", zap.String("kind", string(kind)), zap.Int("count", n))
	return nil
}

func (s *seeder) user() store.Profile { return s.users[s.faker.Number(0, len(s.users)-1)] }

func (s *seeder) pick() seededMedia { return s.media[s.faker.Number(0, len(s.media)-1)] }

// seedPosts draws every fake value up front; the faker is not safe for
// concurrent use, the inserts are.
func (s *seeder) seedPosts(ctx context.Context) error {
	type plan struct {
		post    store.Post
		likers  []store.Profile
		replies []store.Comment
	}
	plans := make([]plan, s.opts.Posts)
	for i := range plans {
		p := store.Post{UserID: s.user().ID, Content: s.faker.Sentence(s.faker.Number(6, 24))}
		if s.faker.Bool() {
			m := s.pick().item
			p.MediaKind, p.MediaID = m.Kind, m.ID
		}
		plans[i].post = p
		for j := 0; j < s.faker.Number(0, 5); j++ {
			plans[i].likers = append(plans[i].likers, s.user())
		}
		for j := 0; j < s.faker.Number(0, 3); j++ {
			plans[i].replies = append(plans[i].replies, store.Comment{UserID: s.user().ID, Content: s.faker.Sentence(8)})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, pl := range plans {
		g.Go(func() error {
			p, err := s.stores.Posts.Create(gctx, pl.post)
			if err != nil {
				return fmt.Errorf("create post: %w", err)
			}
			for _, u := range pl.likers {
				if err := s.stores.Posts.Like(gctx, p.ID, u.ID); err != nil {
					return fmt.Errorf("like: %w", err)
				}
			}
			for _, c := range pl.replies {
				c.PostID = p.ID
				if _, err := s.stores.Posts.CreateComment(gctx, c); err != nil {
					return fmt.Errorf("comment: %w", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.log.Info("seeded posts", zap.Int("count", len(plans)))
	return nil
}

func (s *seeder) seedActivity(ctx context.Context) error {
	visibilities := []string{"public", "public", "public", "friends", "private"}
	marks := []string{store.MarkWatched, store.MarkLiked, store.MarkWatchlist}
	now := time.Now().UTC()
	for i := 0; i < s.opts.Logs; i++ {
		u, m := s.user(), s.pick()
		vis, _ := media.ParseVisibility(s.faker.RandomString(visibilities))
		entry := store.LogEntry{
			UserID: u.ID, Kind: m.item.Kind, MediaID: m.item.ID,
			Note:       s.faker.Sentence(s.faker.Number(0, 12)),
			Visibility: vis,
			Liked:      s.faker.Bool(),
			LoggedAt:   s.faker.DateRange(now.AddDate(-1, 0, 0), now).UTC(),
		}
		if len(m.units) > 0 && s.faker.Number(0, 3) > 0 {
			unit := m.units[s.faker.Number(0, len(m.units)-1)]
			entry.UnitID = &unit.ID
		}
		if s.faker.Bool() {
			r := s.faker.Number(0, 100)
			entry.Rating = &r
		}
		if s.faker.Number(0, 4) == 0 {
			rev, err := s.stores.Reviews.Create(ctx, store.Review{
				UserID: u.ID, Kind: m.item.Kind, MediaID: m.item.ID, UnitID: entry.UnitID,
				Rating: entry.Rating, Content: s.faker.Paragraph(1, 3, 12, " "),
				ContainsSpoilers: s.faker.Number(0, 5) == 0, Visibility: vis,
			})
			if err != nil {
				return fmt.Errorf("create review: %w", err)
			}
			entry.ReviewID = &rev.ID
		}
		if _, err := s.stores.Logs.Create(ctx, entry); err != nil {
			return fmt.Errorf("create log: %w", err)
		}

		target, targetID := m.item.Kind.SeriesTarget(), m.item.ID
		if entry.UnitID != nil {
			target, targetID = m.item.Kind.UnitTarget(), *entry.UnitID
		}
		mark := store.Mark{UserID: u.ID, TargetType: target, TargetID: targetID, Mark: s.faker.RandomString(marks)}
		if _, err := s.stores.Marks.Set(ctx, mark); err != nil {
			return fmt.Errorf("set mark: %w", err)
		}
	}
	s.log.Info("seeded activity", zap.Int("logs", s.opts.Logs))
	return nil
}
