package cachesync

import (
	"fmt"
	"time"
)

// DefaultTTL bounds how long a missed invalidation can serve stale data.
const DefaultTTL = 3600 * time.Second

// Entry kinds, used as metric labels.
const (
	KindGraph     = "graph"
	KindDatabases = "databases"
)

// DatabasesKey is the cache key of a user's database summary.
func DatabasesKey(userID string) string {
	return fmt.Sprintf("user:%s:databases", userID)
}

// GraphKey is the cache key of a database's graph view.
func GraphKey(databaseID string) string {
	return fmt.Sprintf("database:%s:graph", databaseID)
}

// invalidatedKey holds the time key was last invalidated.
func invalidatedKey(key string) string {
	return key + ":invalidatedAt"
}
