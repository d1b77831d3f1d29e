package handlers

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/auth"
	"github.com/example/anitrack/internal/trending"
	"github.com/example/anitrack/services/web/internal/autolink"
	"github.com/example/anitrack/services/web/internal/completions"
	"github.com/example/anitrack/services/web/internal/feed"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/pages"
	"github.com/example/anitrack/services/web/internal/store"
	"github.com/example/anitrack/services/web/internal/tracking"
)

// Deps is everything the routes need. The router is expected to run
// auth.OptionalUser already so public routes see the viewer.
type Deps struct {
	Stores      store.Stores
	Verifier    auth.JWTVerifier
	Issuer      auth.Issuer
	AdminSecret string
	Feed        *feed.Service
	Tracking    *tracking.Service
	Pages       *pages.Service
	Completions *completions.Service
	Trending    *trending.Reader
	Linker      *autolink.Linker
	Log         *zap.Logger
}

func Mount(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r.Post("/v1/auth/register", Register(d.Stores.Profiles, d.Issuer, log))
	r.Post("/v1/auth/login", Login(d.Stores.Profiles, d.Issuer, log))

	r.Get("/v1/feed", Feed(d.Feed, log))
	r.Get("/v1/posts/{id}/comments", ListComments(d.Feed, log))

	r.Get("/v1/anime/{slug}", MediaPage(d.Pages, media.KindAnime, log))
	r.Get("/v1/manga/{slug}", MediaPage(d.Pages, media.KindManga, log))
	r.Get("/v1/anime/{slug}/episodes/{number}", UnitPage(d.Pages, media.KindAnime, log))
	r.Get("/v1/manga/{slug}/chapters/{number}", UnitPage(d.Pages, media.KindManga, log))
	r.Get("/v1/{kind}/{slug}/backdrop", Backdrop(d.Pages, log))
	r.Get("/v1/{kind}/{slug}/reviews", MediaReviews(d.Tracking, d.Stores.Media, log))

	r.Get("/v1/users/{username}", Profile(d.Pages, log))
	r.Get("/v1/users/{username}/activity", Activity(d.Pages, log))
	r.Get("/v1/users/{username}/posts", UserPosts(d.Feed, d.Stores.Profiles, log))
	r.Get("/v1/users/{username}/journal", Journal(d.Tracking, d.Stores.Profiles, log))
	r.Get("/v1/users/{username}/completions", UserCompletions(d.Completions, d.Stores.Profiles, log))

	r.Get("/api/completions/progress", CompletionProgress(d.Completions, log))
	r.Get("/api/completions/engagement", CompletionEngagement(d.Completions, log))

	if d.Trending != nil {
		r.Get("/v1/trending/{kind}", Trending(d.Trending, log))
	}
	r.Get("/v1/rings/progress.svg", RingSVG())
	r.Get("/v1/rings/progress", RingSegments())

	if d.Linker != nil {
		r.Post("/api/admin/auto-link-anime", AutoLinkAnime(d.Linker, d.AdminSecret, log))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(d.Verifier))
		r.Get("/v1/me", Me(d.Stores.Profiles, log))

		r.Post("/v1/posts", CreatePost(d.Feed, d.Stores.Media, log))
		r.Patch("/v1/posts/{id}", UpdatePost(d.Feed, log))
		r.Delete("/v1/posts/{id}", DeletePost(d.Feed, log))
		r.Put("/v1/posts/{id}/like", LikePost(d.Feed, true, log))
		r.Delete("/v1/posts/{id}/like", LikePost(d.Feed, false, log))
		r.Post("/v1/posts/{id}/comments", CreateComment(d.Feed, log))

		r.Put("/v1/marks", SetMark(d.Tracking, log))
		r.Delete("/v1/marks", ClearMark(d.Tracking, log))
		r.Post("/v1/logs", CreateLog(d.Tracking, log))
		r.Post("/v1/reviews", CreateReview(d.Tracking, log))
	})
}
