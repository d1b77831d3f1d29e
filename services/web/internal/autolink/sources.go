package autolink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	SourceTMDB = "tmdb"
	SourceTVDB = "tvdb"
)

// Candidate is one search hit from an external catalog.
type Candidate struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Year       int    `json:"year,omitempty"`
	Episodes   int    `json:"episodes,omitempty"`
	Confidence int    `json:"confidence"`
}

// Source searches one external catalog for series.
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Candidate, error)
}

type httpSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPSource(baseURL, apiKey string, rps float64) httpSource {
	if rps <= 0 {
		rps = 4
	}
	return httpSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (h httpSource) get(ctx context.Context, rawURL string, dst any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "anitrack-web/1.0")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}
	return json.Unmarshal(b, dst)
}

// yearOf reads the leading four digits of a date or year string.
func yearOf(s string) int {
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return y
}

// ─── TMDB ───────────────────────────────────────────────────────────────────

type TMDB struct{ httpSource }

func NewTMDB(baseURL, apiKey string, rps float64) *TMDB {
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	return &TMDB{newHTTPSource(baseURL, apiKey, rps)}
}

func (*TMDB) Name() string { return SourceTMDB }

type tmdbSearch struct {
	Results []struct {
		ID           int    `json:"id"`
		Name         string `json:"name"`
		OriginalName string `json:"original_name"`
		FirstAirDate string `json:"first_air_date"`
	} `json:"results"`
}

func (t *TMDB) Search(ctx context.Context, q Query) ([]Candidate, error) {
	v := url.Values{"query": {q.Title}, "include_adult": {"false"}}
	if q.Year > 0 {
		v.Set("first_air_date_year", strconv.Itoa(q.Year))
	}
	var out tmdbSearch
	if err := t.get(ctx, t.baseURL+"/search/tv?"+v.Encode(), &out); err != nil {
		return nil, fmt.Errorf("tmdb search: %w", err)
	}
	cands := make([]Candidate, 0, len(out.Results))
	for _, r := range out.Results {
		title := r.Name
		if TitleScore(q.Title, r.OriginalName) > TitleScore(q.Title, title) {
			title = r.OriginalName
		}
		cands = append(cands, Candidate{
			Source: SourceTMDB, ExternalID: strconv.Itoa(r.ID), Title: title, Year: yearOf(r.FirstAirDate),
		})
	}
	return cands, nil
}

// ─── TVDB ───────────────────────────────────────────────────────────────────

type TVDB struct{ httpSource }

func NewTVDB(baseURL, apiKey string, rps float64) *TVDB {
	if baseURL == "" {
		baseURL = "https://api4.thetvdb.com/v4"
	}
	return &TVDB{newHTTPSource(baseURL, apiKey, rps)}
}

func (*TVDB) Name() string { return SourceTVDB }

type tvdbSearch struct {
	Data []struct {
		TVDBID       string            `json:"tvdb_id"`
		Name         string            `json:"name"`
		Year         string            `json:"year"`
		Translations map[string]string `json:"translations"`
	} `json:"data"`
}

func (t *TVDB) Search(ctx context.Context, q Query) ([]Candidate, error) {
	v := url.Values{"query": {q.Title}, "type": {"series"}}
	if q.Year > 0 {
		v.Set("year", strconv.Itoa(q.Year))
	}
	var out tvdbSearch
	if err := t.get(ctx, t.baseURL+"/search?"+v.Encode(), &out); err != nil {
		return nil, fmt.Errorf("tvdb search: %w", err)
	}
	cands := make([]Candidate, 0, len(out.Data))
	for _, d := range out.Data {
		title := d.Name
		if eng := d.Translations["eng"]; eng != "" && TitleScore(q.Title, eng) > TitleScore(q.Title, title) {
			title = eng
		}
		cands = append(cands, Candidate{
			Source: SourceTVDB, ExternalID: d.TVDBID, Title: title, Year: yearOf(d.Year),
		})
	}
	return cands, nil
}
