package guardrails

import (
	"fmt"
	"strings"

	"github.com/gmarmat/jotrack/internal/shared/telemetry"
)

// ErrModelNotAllowed is returned when a requested model is outside the
// allowlist and substitution is disabled. The gate fails closed.
type ErrModelNotAllowed struct {
	Requested string
}

func (e *ErrModelNotAllowed) Error() string {
	return fmt.Sprintf("model %q is not on the allowlist", e.Requested)
}

// ModelGate validates requested model identifiers against a configured
// allowlist. When substitution is enabled, a disallowed model in a known
// family is swapped for that family's allowed default and the swap is
// logged; otherwise the request is rejected.
type ModelGate struct {
	allowed         map[string]bool
	familyDefault   map[string]string
	allowSubstitute bool
}

// DefaultModelAllowlist is used when no allowlist is configured.
var DefaultModelAllowlist = []string{
	"gpt-4o-mini",
	"gpt-4o",
	"claude-3-5-haiku-20241022",
	"claude-3-5-sonnet-20241022",
}

func NewModelGate(allowlist []string, allowSubstitute bool) *ModelGate {
	if len(allowlist) == 0 {
		allowlist = DefaultModelAllowlist
	}
	g := &ModelGate{
		allowed:         make(map[string]bool, len(allowlist)),
		familyDefault:   make(map[string]string),
		allowSubstitute: allowSubstitute,
	}
	for _, m := range allowlist {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		g.allowed[m] = true
		fam := modelFamily(m)
		if fam != "" {
			if _, ok := g.familyDefault[fam]; !ok {
				// First allowed model in a family becomes its default.
				g.familyDefault[fam] = m
			}
		}
	}
	return g
}

// Resolve returns the model to actually use for a request. substituted is
// true when the returned model differs from the requested one.
func (g *ModelGate) Resolve(requested string) (model string, substituted bool, err error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", false, &ErrModelNotAllowed{Requested: requested}
	}
	if g.allowed[requested] {
		return requested, false, nil
	}
	if !g.allowSubstitute {
		return "", false, &ErrModelNotAllowed{Requested: requested}
	}
	fam := modelFamily(requested)
	fallback, ok := g.familyDefault[fam]
	if !ok {
		return "", false, &ErrModelNotAllowed{Requested: requested}
	}
	telemetry.Warn("model substituted", map[string]any{
		"requested":  requested,
		"substitute": fallback,
		"family":     fam,
	})
	return fallback, true, nil
}

func modelFamily(model string) string {
	for _, prefix := range []string{"gpt-", "o1-", "o3-", "claude-", "gemini-", "llama-", "mistral-"} {
		if strings.HasPrefix(model, prefix) {
			return strings.TrimSuffix(prefix, "-")
		}
	}
	return ""
}
