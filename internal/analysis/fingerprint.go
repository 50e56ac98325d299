package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gmarmat/jotrack/internal/shared/util"
	"github.com/gmarmat/jotrack/internal/variants"
)

const fingerprintHashLen = 16

// Fingerprint summarizes everything a cached analysis depends on. Equal
// fingerprints mean no re-analysis is needed. Tokens are built from content
// hashes, never version numbers, so swapping back to previously-seen content
// reproduces the earlier fingerprint exactly.
type Fingerprint struct {
	Hash   string   `json:"hash"`
	Tokens []string `json:"tokens"`
}

// variantHashes reads active variant content hashes. ActiveContentHash
// returns "" with a nil error when no variant exists for the key.
type variantHashes interface {
	ActiveContentHash(ctx context.Context, sourceID string, sourceType variants.SourceType, kind variants.Kind) (string, error)
}

// sourceCatalog enumerates a job's source documents and the profile version.
type sourceCatalog interface {
	ListActiveByJob(ctx context.Context, jobID string) ([]variants.SourceDoc, error)
	ProfileVersion(ctx context.Context) (int, error)
}

// ComputeFingerprint builds the job fingerprint from one token per active
// source document plus a profile-version token. Each source token is
// "<type>:<prefix of the normalized variant's content hash>"; a source with
// no normalized variant yet falls back to its identity string so it still
// participates.
func (e *Engine) ComputeFingerprint(ctx context.Context, jobID string) (Fingerprint, error) {
	sources, err := e.Sources.ListActiveByJob(ctx, jobID)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("list job sources: %w", err)
	}

	tokens := make([]string, 0, len(sources)+1)
	for _, src := range sources {
		hash, err := e.Variants.ActiveContentHash(ctx, src.SourceID, src.SourceType, variants.KindAIOptimized)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("variant hash for %s/%s: %w", src.SourceType, src.SourceID, err)
		}
		if hash == "" {
			hash = util.ContentHash(src.SourceID)
		}
		tokens = append(tokens, fmt.Sprintf("%s:%s", src.SourceType, util.HashPrefix(hash, fingerprintHashLen)))
	}
	sort.Strings(tokens)

	version, err := e.Sources.ProfileVersion(ctx)
	if err != nil {
		// Missing or unreadable profile state degrades to the default
		// version rather than failing the whole fingerprint.
		version = 1
	}
	tokens = append(tokens, fmt.Sprintf("profile:v%d", version))

	return Fingerprint{
		Hash:   util.ContentHash(strings.Join(tokens, "|")),
		Tokens: tokens,
	}, nil
}

// changedSourceTypes compares two token lists and returns the source types
// whose tokens differ, used to grade a stale report.
func changedSourceTypes(prev, curr []string) []variants.SourceType {
	prevSet := make(map[string]bool, len(prev))
	for _, t := range prev {
		prevSet[t] = true
	}
	currSet := make(map[string]bool, len(curr))
	for _, t := range curr {
		currSet[t] = true
	}

	changed := make(map[variants.SourceType]bool)
	collect := func(tokens []string, other map[string]bool) {
		for _, t := range tokens {
			if other[t] {
				continue
			}
			typ, _, ok := strings.Cut(t, ":")
			if !ok || typ == "profile" {
				continue
			}
			changed[variants.SourceType(typ)] = true
		}
	}
	collect(prev, currSet)
	collect(curr, prevSet)

	out := make([]variants.SourceType, 0, len(changed))
	for typ := range changed {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
