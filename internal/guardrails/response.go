package guardrails

import "fmt"

// ScanResponse checks model output for executable content before it is
// persisted or returned to a browser. Model responses are rendered as data
// only; anything that smells like script is reported so callers can refuse
// to surface it.
func (s *Sanitizer) ScanResponse(text string) []string {
	var findings []string
	for _, p := range s.patterns.Response {
		if p.compiled.MatchString(text) {
			findings = append(findings, fmt.Sprintf("response contains %s", p.Name))
		}
	}
	return findings
}
