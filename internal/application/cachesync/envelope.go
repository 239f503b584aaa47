package cachesync

import (
	"encoding/json"
	"fmt"
	"time"
)

const envelopeVersion = 1

// envelope is the stored form of every cached value. The version lets a
// deploy that changes the data shape treat old entries as misses.
type envelope[T any] struct {
	Version  int       `json:"v"`
	CachedAt time.Time `json:"cachedAt"`
	Data     T         `json:"data"`
}

func encode[T any](data T, now time.Time) (string, error) {
	b, err := json.Marshal(envelope[T]{Version: envelopeVersion, CachedAt: now.UTC(), Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode[T any](raw string) (envelope[T], error) {
	var env envelope[T]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, err
	}
	if env.Version != envelopeVersion {
		return env, fmt.Errorf("unsupported cache envelope version %d", env.Version)
	}
	return env, nil
}
