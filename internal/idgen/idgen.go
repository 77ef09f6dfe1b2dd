// Package idgen provides pluggable generators for the global IDs of nested
// blocks.
//
// Every generator is deterministic: the same parent and local ID always
// produce the same global ID, so flattening the same source twice is
// idempotent and caches keyed by block ID survive across requests.
package idgen

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Generator maps a nested block's parent ID and local ID to a global ID.
type Generator func(parentID, localID string) string

// Key is the mapping key recorded for a parent/local pair.
func Key(parentID, localID string) string {
	return parentID + "." + localID
}

// Hashed returns the default generator: localID_<8 hex chars of the xxhash
// of "parentID.localID">.
func Hashed() Generator {
	return func(parentID, localID string) string {
		sum := xxhash.Sum64String(Key(parentID, localID))
		return fmt.Sprintf("%s_%08x", localID, uint32(sum>>32))
	}
}

// NameBased returns a generator built on name-based UUIDs (v5) in the given
// namespace: localID_<first 8 hex chars of the UUID>.
func NameBased(namespace uuid.UUID) Generator {
	return func(parentID, localID string) string {
		id := uuid.NewSHA1(namespace, []byte(Key(parentID, localID)))
		return localID + "_" + strings.ReplaceAll(id.String(), "-", "")[:8]
	}
}

// Default is the generator used when none is configured.
var Default Generator = Hashed()

// ForStrategy returns the generator for a configured strategy name:
// "hash" (or empty) or "uuid5". namespace is a UUID string for "uuid5";
// empty means uuid.NameSpaceURL.
func ForStrategy(strategy, namespace string) (Generator, error) {
	switch strategy {
	case "", "hash":
		return Hashed(), nil
	case "uuid5":
		ns := uuid.NameSpaceURL
		if namespace != "" {
			parsed, err := uuid.Parse(namespace)
			if err != nil {
				return nil, fmt.Errorf("invalid id namespace %q: %w", namespace, err)
			}
			ns = parsed
		}
		return NameBased(ns), nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q (valid: hash, uuid5)", strategy)
	}
}
