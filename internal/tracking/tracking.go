// Package tracking extracts a correlation id from provider acceptance
// payloads, which are not uniformly shaped. Extraction is an ordered list
// of total extractor functions tried in sequence; when nothing matches, a
// synthetic id is minted so correlation failures stay diagnosable.
package tracking

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SyntheticPrefix tags ids minted locally, distinguishing them from
// provider-supplied ones.
const SyntheticPrefix = "local-"

// idFields are the field names treated as identifier-bearing, in priority
// order.
var idFields = []string{"id", "task_id", "taskId", "request_id", "requestId", "uuid", "job_id", "jobId"}

// nestFields are the conventional wrapper fields holding the real response
// one level down.
var nestFields = []string{"response", "data", "result"}

type extractor func(payload map[string]any) (string, bool)

var extractors = []extractor{
	extractTopLevel,
	extractNested,
	extractRecursive,
}

// Resolve returns the correlation id for an acceptance payload. Extractors
// run in priority order; a nil or unrecognizable payload yields a synthetic
// id, never an error.
func Resolve(payload map[string]any) string {
	for _, ex := range extractors {
		if id, ok := ex(payload); ok {
			return id
		}
	}
	return Synthesize()
}

// Synthesize mints a prefix-tagged id from the current time plus a random
// component.
func Synthesize() string {
	return fmt.Sprintf("%s%d-%s", SyntheticPrefix, time.Now().UnixNano(), uuid.New().String()[:8])
}

// IsSynthetic reports whether id was minted locally rather than supplied by
// a provider.
func IsSynthetic(id string) bool {
	return len(id) >= len(SyntheticPrefix) && id[:len(SyntheticPrefix)] == SyntheticPrefix
}

func extractTopLevel(payload map[string]any) (string, bool) {
	return idFrom(payload)
}

func extractNested(payload map[string]any) (string, bool) {
	for _, wrap := range nestFields {
		if inner, ok := payload[wrap].(map[string]any); ok {
			if id, ok := idFrom(inner); ok {
				return id, true
			}
		}
	}
	return "", false
}

// extractRecursive walks every nested object and returns the first
// identifier-shaped value. Keys are visited in sorted order so the result
// is deterministic for a given payload.
func extractRecursive(payload map[string]any) (string, bool) {
	if payload == nil {
		return "", false
	}
	if id, ok := idFrom(payload); ok {
		return id, true
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := payload[k].(type) {
		case map[string]any:
			if id, ok := extractRecursive(v); ok {
				return id, true
			}
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					if id, ok := extractRecursive(m); ok {
						return id, true
					}
				}
			}
		}
	}
	return "", false
}

func idFrom(m map[string]any) (string, bool) {
	for _, f := range idFields {
		if v, ok := m[f]; ok {
			if s, ok := identifierShaped(v); ok {
				return s, true
			}
		}
	}
	return "", false
}

// identifierShaped accepts non-empty strings and integral numbers.
func identifierShaped(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		if val != "" {
			return val, true
		}
	case float64:
		if val == float64(int64(val)) && val != 0 {
			return fmt.Sprintf("%d", int64(val)), true
		}
	}
	return "", false
}
