// Package autolink matches anime to TMDB and TVDB series and records the
// best candidate per source.
package autolink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/anitrack/internal/platform/metrics"
	"github.com/example/anitrack/services/web/internal/store"
)

type Request struct {
	AnimeID          string `json:"animeId"`
	TitleOverride    string `json:"titleOverride,omitempty"`
	YearOverride     int    `json:"yearOverride,omitempty"`
	EpisodesOverride int    `json:"episodesOverride,omitempty"`
}

type Result struct {
	Success bool                  `json:"success"`
	AnimeID string                `json:"anime_id"`
	Query   Query                 `json:"query"`
	Best    map[string]*Candidate `json:"best"`
	Errors  map[string]string     `json:"errors,omitempty"`
}

type Linker struct {
	Media   store.Media
	Sources []Source
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// Best returns the highest scoring candidate, or nil. Ties keep the
// earlier candidate.
func Best(q Query, cands []Candidate) *Candidate {
	var best *Candidate
	for i := range cands {
		c := cands[i]
		c.Confidence = Score(q, c)
		if best == nil || c.Confidence > best.Confidence {
			best = &c
		}
	}
	return best
}

// Link searches every source in parallel. A failing source is reported in
// Errors without affecting the others.
func (l *Linker) Link(ctx context.Context, req Request) (Result, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	anime, err := store.AnimeByID(ctx, l.Media, strings.TrimSpace(req.AnimeID))
	if err != nil {
		return Result{}, err
	}
	q := Query{Title: anime.Title, Year: anime.Year, Episodes: anime.Units}
	if t := strings.TrimSpace(req.TitleOverride); t != "" {
		q.Title = t
	}
	if req.YearOverride > 0 {
		q.Year = req.YearOverride
	}
	if req.EpisodesOverride > 0 {
		q.Episodes = req.EpisodesOverride
	}

	res := Result{AnimeID: anime.ID, Query: q, Best: map[string]*Candidate{SourceTMDB: nil, SourceTVDB: nil}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range l.Sources {
		name := src.Name()
		res.Best[name] = nil
		g.Go(func() error {
			best, err := l.linkSource(gctx, anime.ID, src, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("autolink source failed", zap.String("source", name), zap.String("anime_id", anime.ID), zap.Error(err))
				if res.Errors == nil {
					res.Errors = map[string]string{}
				}
				res.Errors[name] = err.Error()
				l.Metrics.AutoLink(name, "error")
				return nil
			}
			res.Best[name] = best
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res.Success = len(res.Errors) < len(l.Sources) || len(l.Sources) == 0
	return res, nil
}

func (l *Linker) linkSource(ctx context.Context, animeID string, src Source, q Query) (*Candidate, error) {
	cands, err := src.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	best := Best(q, cands)
	if best == nil {
		l.Metrics.AutoLink(src.Name(), "no_match")
		return nil, nil
	}
	err = l.Media.UpsertExternalLink(ctx, store.ExternalLink{
		AnimeID: animeID, Source: src.Name(), ExternalID: best.ExternalID, Title: best.Title,
		Year: best.Year, Episodes: best.Episodes, Confidence: best.Confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("save link: %w", err)
	}
	outcome := "linked"
	if best.Confidence >= backfillThreshold {
		if err := l.Media.SetLegacyExternalID(ctx, animeID, src.Name(), best.ExternalID); err != nil {
			return nil, fmt.Errorf("backfill %s id: %w", src.Name(), err)
		}
		outcome = "backfilled"
	}
	l.Metrics.AutoLink(src.Name(), outcome)
	return best, nil
}
