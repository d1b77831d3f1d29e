// Package completions filters, sorts and pages a user's completion rows and
// serves progress and engagement through the stats cache.
package completions

import (
	"encoding/base64"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/store"
)

// Item is one media entity on a user's completions list.
type Item struct {
	Kind      media.Kind `json:"kind"`
	MediaID   string     `json:"media_id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	PosterURL string     `json:"poster_url,omitempty"`
	Current   int        `json:"current"`
	Total     int        `json:"total"`
	Reviewed  int        `json:"reviewed"`
	Rated     int        `json:"rated"`
	Percent   int        `json:"percent"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FromRow converts a store row and fills in Percent.
func FromRow(r store.CompletionRow) Item {
	it := Item{
		Kind: r.Kind, MediaID: r.MediaID, Slug: r.Slug, Title: r.Title,
		PosterURL: media.NormalizeImageURL(r.PosterURL, "w342"),
		Current:   r.Current, Total: r.Total, Reviewed: r.Reviewed, Rated: r.Rated,
		UpdatedAt: r.UpdatedAt,
	}
	it.Percent = Percent(it.Current, it.Total)
	return it
}

// Percent is floor(current*100/total) clamped to [0, 100]; an unknown total is 0.
func Percent(current, total int) int {
	if total <= 0 || current <= 0 {
		return 0
	}
	p := current * 100 / total
	if p > 100 {
		return 100
	}
	return p
}

// ─── buckets ────────────────────────────────────────────────────────────────

// Bucket is an inclusive percent range. Nil bounds mean unbounded.
type Bucket struct {
	MinPct *int `json:"min_pct"`
	MaxPct *int `json:"max_pct"`
}

const BucketAll = "all"

// BucketOptions is the fixed set of filter values offered to clients.
var BucketOptions = func() []string {
	out := []string{BucketAll}
	for lo := 0; lo < 100; lo += 10 {
		out = append(out, strconv.Itoa(lo)+"-"+strconv.Itoa(lo+9))
	}
	return append(out, "100")
}()

func intPtr(v int) *int { return &v }

// ParseBucket accepts "all", "N-M" and "100". Anything else yields the all
// bucket and false.
func ParseBucket(s string) (Bucket, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == BucketAll {
		return Bucket{}, true
	}
	lo, hi, ranged := strings.Cut(s, "-")
	from, err := strconv.Atoi(lo)
	if err != nil {
		return Bucket{}, false
	}
	to := from
	if ranged {
		if to, err = strconv.Atoi(hi); err != nil {
			return Bucket{}, false
		}
	}
	if from < 0 || to > 100 || from > to {
		return Bucket{}, false
	}
	return Bucket{MinPct: intPtr(from), MaxPct: intPtr(to)}, true
}

func (b Bucket) Contains(pct int) bool {
	if b.MinPct != nil && pct < *b.MinPct {
		return false
	}
	if b.MaxPct != nil && pct > *b.MaxPct {
		return false
	}
	return true
}

func (b Bucket) String() string {
	switch {
	case b.MinPct == nil && b.MaxPct == nil:
		return BucketAll
	case b.MinPct != nil && b.MaxPct != nil && *b.MinPct == *b.MaxPct:
		return strconv.Itoa(*b.MinPct)
	}
	lo, hi := 0, 100
	if b.MinPct != nil {
		lo = *b.MinPct
	}
	if b.MaxPct != nil {
		hi = *b.MaxPct
	}
	return strconv.Itoa(lo) + "-" + strconv.Itoa(hi)
}

// ─── sorting ────────────────────────────────────────────────────────────────

type SortKey string

const (
	SortPctDesc   SortKey = "pct_desc"
	SortPctAsc    SortKey = "pct_asc"
	SortTitleAsc  SortKey = "title_asc"
	SortTitleDesc SortKey = "title_desc"
	SortRecent    SortKey = "recent"
)

// ParseSort defaults to recent.
func ParseSort(s string) (SortKey, bool) {
	switch k := SortKey(strings.TrimSpace(s)); k {
	case SortPctDesc, SortPctAsc, SortTitleAsc, SortTitleDesc, SortRecent:
		return k, true
	case "":
		return SortRecent, true
	}
	return SortRecent, false
}

var fold = cases.Fold()

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare orders a before b (negative), after b (positive), or reports
// equality only for items with the same kind and media id.
func Compare(key SortKey, a, b Item) int {
	ta, tb := fold.String(a.Title), fold.String(b.Title)
	var c int
	switch key {
	case SortPctDesc:
		c = cmpInt(b.Percent, a.Percent)
	case SortPctAsc:
		c = cmpInt(a.Percent, b.Percent)
	case SortTitleAsc:
		c = strings.Compare(ta, tb)
	case SortTitleDesc:
		c = strings.Compare(tb, ta)
	default:
		c = -a.UpdatedAt.Compare(b.UpdatedAt)
	}
	if c != 0 {
		return c
	}
	if c = strings.Compare(ta, tb); c != 0 {
		return c
	}
	if c = strings.Compare(a.MediaID, b.MediaID); c != 0 {
		return c
	}
	return strings.Compare(string(a.Kind), string(b.Kind))
}

func sortItems(items []Item, key SortKey) {
	slices.SortStableFunc(items, func(a, b Item) int { return Compare(key, a, b) })
}

// ─── query ──────────────────────────────────────────────────────────────────

type Query struct {
	Bucket Bucket
	Sort   SortKey
	Search string
	// Kind restricts to one media kind; empty means both.
	Kind media.Kind
}

// Apply filters by kind, bucket and case-insensitive title substring, then
// sorts. The input slice is not modified.
func Apply(items []Item, q Query) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if q.Kind != "" && it.Kind != q.Kind {
			continue
		}
		if !q.Bucket.Contains(it.Percent) {
			continue
		}
		if !media.MatchesQuery(it.Title, q.Search) {
			continue
		}
		out = append(out, it)
	}
	key := q.Sort
	if key == "" {
		key = SortRecent
	}
	sortItems(out, key)
	return out
}

// ─── paging ─────────────────────────────────────────────────────────────────

var ErrBadCursor = errors.New("invalid cursor")

func encodeOffset(n int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o:" + strconv.Itoa(n)))
}

func decodeOffset(c string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return 0, ErrBadCursor
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(raw), "o:"))
	if err != nil || n < 0 || !strings.HasPrefix(string(raw), "o:") {
		return 0, ErrBadCursor
	}
	return n, nil
}

// Page slices a filtered list with an opaque offset cursor.
func Page(items []Item, cursor string, limit int) ([]Item, string, error) {
	limit = store.ClampLimit(limit)
	start := 0
	if cursor != "" {
		n, err := decodeOffset(cursor)
		if err != nil {
			return nil, "", err
		}
		start = n
	}
	if start >= len(items) {
		return []Item{}, "", nil
	}
	end := start + limit
	next := ""
	if end < len(items) {
		next = encodeOffset(end)
	} else {
		end = len(items)
	}
	return items[start:end], next, nil
}
