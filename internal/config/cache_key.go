package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AnalyzerGroupLockKey returns the Redis mutual-exclusion key held while a
// (class, session_date) group is being analyzed, so a ticking analyzer run
// and an on-demand POST /analyze-correlations never process the same group
// concurrently.
func (r *CacheKeyStruct) AnalyzerGroupLockKey(classID, sessionDate string) string {
	return fmt.Sprintf("analyzer:lock:%s:%s", classID, sessionDate)
}

var CacheKey = NewCacheKeyStruct()
