package core

import (
	"encoding/json"
	"math"
	"time"
)

// BindingRecord links one chat user to one Casdoor account
type BindingRecord struct {
	ID               string // Chat platform user id
	ExternalUsername string
	AccessToken      string
	RefreshToken     string
	BoundAt          time.Time
}

// Profile is a Casdoor user object. Only "score" is interpreted; every other
// field is carried back to the backend as it was received.
type Profile map[string]any

const profileScoreKey = "score"

// Score returns the current score, treating a missing or null value as 0.
func (p Profile) Score() int64 {
	switch v := p[profileScoreKey].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return roundScore(f)
		}
	case float64:
		return roundScore(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// roundScore rounds to the nearest integer, clamped to the int64 range.
func roundScore(f float64) int64 {
	switch r := math.Round(f); {
	case math.IsNaN(r):
		return 0
	case r >= math.MaxInt64:
		return math.MaxInt64
	case r <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(r)
	}
}

// AddScore returns score+delta, saturating at the int64 bounds.
func AddScore(score int64, delta int64) int64 {
	if delta > 0 && score > math.MaxInt64-delta {
		return math.MaxInt64
	}
	if delta < 0 && score < math.MinInt64-delta {
		return math.MinInt64
	}
	return score + delta
}

func (p Profile) SetScore(score int64) {
	p[profileScoreKey] = score
}

// Name returns the profile's "name" field if it is a string.
func (p Profile) Name() string {
	name, _ := p["name"].(string)
	return name
}
