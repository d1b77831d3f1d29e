package autolink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/store"
)

func TestTitleScore(t *testing.T) {
	require.Equal(t, 70, TitleScore("Frieren: Beyond Journey's End", "frieren beyond journey s end"))
	require.Equal(t, 28, TitleScore("Mushishi Zoku Shou", "Mushishi Zoku Other Thing"))
	require.Equal(t, 0, TitleScore("Monster", "Naruto"))
	require.Equal(t, 0, TitleScore("", "Naruto"))
}

func TestYearAndEpisodesScore(t *testing.T) {
	require.Equal(t, 20, YearScore(2023, 2023))
	require.Equal(t, 10, YearScore(2023, 2022))
	require.Equal(t, 0, YearScore(2023, 2020))
	require.Equal(t, 5, YearScore(0, 2020))

	require.Equal(t, 10, EpisodesScore(28, 28))
	require.Equal(t, 5, EpisodesScore(28, 26))
	require.Equal(t, 0, EpisodesScore(28, 12))
	require.Equal(t, 3, EpisodesScore(28, 0))
}

func TestScore_Bounds(t *testing.T) {
	q := Query{Title: "Frieren", Year: 2023, Episodes: 28}
	require.Equal(t, 100, Score(q, Candidate{Title: "Frieren", Year: 2023, Episodes: 28}))
	require.Equal(t, 93, Score(q, Candidate{Title: "Frieren", Year: 2023}))
	require.Equal(t, 3, Score(q, Candidate{Title: "Other", Year: 1990}))
}

func TestBest(t *testing.T) {
	q := Query{Title: "Monster", Year: 2004}
	require.Nil(t, Best(q, nil))
	best := Best(q, []Candidate{
		{ExternalID: "1", Title: "Monster Hunter", Year: 2004},
		{ExternalID: "2", Title: "Monster", Year: 2004},
		{ExternalID: "3", Title: "Monster", Year: 2004},
	})
	require.NotNil(t, best)
	require.Equal(t, "2", best.ExternalID)
	require.Equal(t, 93, best.Confidence)
}

func tmdbServer(t *testing.T, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/tv", r.URL.Path)
		assert.Equal(t, "Bearer tmdb-key", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{
			{"id": 209867, "name": "Frieren: Beyond Journey's End", "original_name": "Sousou no Frieren", "first_air_date": "2023-09-29"},
			{"id": 1, "name": "Something Else", "first_air_date": "2001-01-01"},
		}})
	}))
}

func tvdbServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "series", r.URL.Query().Get("type"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"tvdb_id": "424536", "name": "Sousou no Frieren", "year": "2023", "translations": map[string]string{"eng": "Frieren: Beyond Journey's End"}},
		}})
	}))
}

func seedAnime(t *testing.T) (store.Media, store.MediaItem) {
	t.Helper()
	s := store.NewMemoryStores()
	a, err := s.Media.CreateMedia(context.Background(), store.MediaItem{
		Kind: media.KindAnime, Slug: "frieren", Title: "Frieren: Beyond Journey's End", Year: 2023, Units: 28,
	})
	require.NoError(t, err)
	return s.Media, a
}

func TestLink_BothSources(t *testing.T) {
	tm, tv := tmdbServer(t, http.StatusOK), tvdbServer(t)
	defer tm.Close()
	defer tv.Close()
	m, anime := seedAnime(t)

	l := &Linker{Media: m, Sources: []Source{NewTMDB(tm.URL, "tmdb-key", 100), NewTVDB(tv.URL, "tvdb-key", 100)}}
	res, err := l.Link(context.Background(), Request{AnimeID: anime.ID})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.Errors)
	require.Equal(t, "209867", res.Best[SourceTMDB].ExternalID)
	require.Equal(t, "424536", res.Best[SourceTVDB].ExternalID)
	require.GreaterOrEqual(t, res.Best[SourceTMDB].Confidence, 90)

	links, err := m.ExternalLinks(context.Background(), anime.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)

	updated, err := m.ByID(context.Background(), media.KindAnime, anime.ID)
	require.NoError(t, err)
	require.Equal(t, "209867", updated.TMDBID)
	require.Equal(t, "424536", updated.TVDBID)
}

func TestLink_OneSourceFails(t *testing.T) {
	tm, tv := tmdbServer(t, http.StatusInternalServerError), tvdbServer(t)
	defer tm.Close()
	defer tv.Close()
	m, anime := seedAnime(t)

	l := &Linker{Media: m, Sources: []Source{NewTMDB(tm.URL, "tmdb-key", 100), NewTVDB(tv.URL, "", 100)}}
	res, err := l.Link(context.Background(), Request{AnimeID: anime.ID, TitleOverride: "Sousou no Frieren"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Errors, SourceTMDB)
	require.Nil(t, res.Best[SourceTMDB])
	require.NotNil(t, res.Best[SourceTVDB])
	require.Equal(t, "Sousou no Frieren", res.Query.Title)
}

func TestLink_UnconfiguredSourceStillInBest(t *testing.T) {
	tv := tvdbServer(t)
	defer tv.Close()
	m, anime := seedAnime(t)

	l := &Linker{Media: m, Sources: []Source{NewTVDB(tv.URL, "tvdb-key", 100)}}
	res, err := l.Link(context.Background(), Request{AnimeID: anime.ID})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Best, SourceTMDB)
	require.Nil(t, res.Best[SourceTMDB])
	require.NotNil(t, res.Best[SourceTVDB])

	b, err := json.Marshal(res)
	require.NoError(t, err)
	var body struct {
		Best map[string]json.RawMessage `json:"best"`
	}
	require.NoError(t, json.Unmarshal(b, &body))
	require.Equal(t, "null", string(body.Best[SourceTMDB]))
	require.Contains(t, body.Best, SourceTVDB)
}

func TestLink_UnknownAnime(t *testing.T) {
	m, _ := seedAnime(t)
	l := &Linker{Media: m}
	_, err := l.Link(context.Background(), Request{AnimeID: "missing"})
	require.ErrorIs(t, err, store.ErrNotFound)
}
