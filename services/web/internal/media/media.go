// Package media holds the shared vocabulary for anime and manga entities:
// kinds, mark targets, visibility and image URL normalization.
package media

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindAnime Kind = "anime"
	KindManga Kind = "manga"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAnime:
		return KindAnime, true
	case KindManga:
		return KindManga, true
	}
	return "", false
}

// Unit is the singular name of the kind's numbered parts.
func (k Kind) Unit() string {
	if k == KindManga {
		return "chapter"
	}
	return "episode"
}

// UnitTarget is the mark target type for one episode or chapter of k.
func (k Kind) UnitTarget() TargetType {
	if k == KindManga {
		return TargetMangaChapter
	}
	return TargetAnimeEpisode
}

// SeriesTarget is the mark target type for the whole entity.
func (k Kind) SeriesTarget() TargetType {
	if k == KindManga {
		return TargetManga
	}
	return TargetAnime
}

type TargetType string

const (
	TargetAnime        TargetType = "anime"
	TargetManga        TargetType = "manga"
	TargetAnimeEpisode TargetType = "anime_episode"
	TargetMangaChapter TargetType = "manga_chapter"
)

func ParseTargetType(s string) (TargetType, bool) {
	switch t := TargetType(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetAnime, TargetManga, TargetAnimeEpisode, TargetMangaChapter:
		return t, true
	}
	return "", false
}

// Kind reports which media kind a target belongs to.
func (t TargetType) Kind() Kind {
	switch t {
	case TargetManga, TargetMangaChapter:
		return KindManga
	}
	return KindAnime
}

func (t TargetType) IsUnit() bool {
	return t == TargetAnimeEpisode || t == TargetMangaChapter
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility maps "" to public and rejects unknown values.
func ParseVisibility(s string) (Visibility, bool) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return VisibilityPublic, true
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return v, true
	}
	return "", false
}

// VisibleTo reports whether viewerID may see a row owned by ownerID.
// Owners see everything; everyone else only sees public rows.
func VisibleTo(v Visibility, ownerID, viewerID string) bool {
	if viewerID != "" && viewerID == ownerID {
		return true
	}
	return v == VisibilityPublic || v == ""
}

const tmdbImageBase = "https://image.tmdb.org/t/p/"

var tmdbImage = regexp.MustCompile(`^https?://image\.tmdb\.org/t/p/[^/]+/(.+)$`)

// NormalizeImageURL rewrites TMDB image URLs to the requested size, expands
// bare TMDB paths, and upgrades protocol-relative URLs to https. Anything
// else passes through unchanged.
func NormalizeImageURL(raw, size string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if size = strings.TrimSpace(size); size == "" {
		size = "original"
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	if m := tmdbImage.FindStringSubmatch(raw); m != nil {
		return tmdbImageBase + size + "/" + m[1]
	}
	if strings.HasPrefix(raw, "/") {
		return tmdbImageBase + size + raw
	}
	return raw
}

// MatchesQuery is a case-insensitive substring filter; an empty query matches.
func MatchesQuery(title, q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(q))
}
