// Package stars converts between 0..100 ratings and five-star half-star displays.
package stars

import (
	"math"
	"strconv"
)

const (
	Count        = 5
	MaxHalfStars = 2 * Count
	MaxRating    = 100
)

// FillPercent is how much of star starIndex (1-based) is filled for the
// given number of half stars: 100, 50 or 0.
func FillPercent(halfStars, starIndex int) int {
	switch d := halfStars - 2*(starIndex-1); {
	case d >= 2:
		return 100
	case d == 1:
		return 50
	default:
		return 0
	}
}

// Fills returns FillPercent for each of the five stars.
func Fills(halfStars int) [Count]int {
	var out [Count]int
	for i := range out {
		out[i] = FillPercent(halfStars, i+1)
	}
	return out
}

// RatingToHalfStars rounds a 0..100 rating to the nearest half star.
func RatingToHalfStars(rating int) int {
	rating = clamp(rating, 0, MaxRating)
	return int(math.Round(float64(rating) * MaxHalfStars / MaxRating))
}

func HalfStarsToRating(halfStars int) int {
	return clamp(halfStars, 0, MaxHalfStars) * MaxRating / MaxHalfStars
}

// Label renders half stars as a star count, e.g. 7 → "3.5".
func Label(halfStars int) string {
	halfStars = clamp(halfStars, 0, MaxHalfStars)
	if halfStars%2 == 0 {
		return strconv.Itoa(halfStars / 2)
	}
	return strconv.Itoa(halfStars/2) + ".5"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
