package guardrails

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Pattern is one named detection rule. Rules are data, not code, so coverage
// can evolve without a release: a YAML file can replace the compiled-in set.
type Pattern struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`

	compiled *regexp.Regexp
}

// PatternSet groups the injection and PII rules used by the sanitizer.
type PatternSet struct {
	Injection []Pattern `yaml:"injection"`
	PII       []Pattern `yaml:"pii"`
	Response  []Pattern `yaml:"response"`
}

// DefaultPatternSet returns the compiled-in detection rules.
func DefaultPatternSet() *PatternSet {
	set := &PatternSet{
		Injection: []Pattern{
			{Name: "ignore_previous", Regex: `(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`},
			{Name: "disregard_instructions", Regex: `(?i)disregard\s+(all\s+)?(previous|prior|the)\s+(instructions|rules)`},
			{Name: "role_override", Regex: `(?i)you\s+are\s+now\s+(a|an|the)\s`},
			{Name: "new_instructions", Regex: `(?i)(new|updated)\s+(system\s+)?instructions\s*:`},
			{Name: "system_marker", Regex: `(?i)^\s*(system|assistant)\s*:`},
			{Name: "chat_template_marker", Regex: `<\|im_(start|end)\|>|\[/?(INST|SYS)\]`},
			{Name: "command_execution", Regex: `(?i)(run|execute)\s+(the\s+)?(command|shell|script|bash)`},
			{Name: "exfiltration", Regex: `(?i)(send|post|upload|forward)\s+(this|the|all)?\s*(data|contents?|conversation|text)\s+to\s`},
			{Name: "reveal_prompt", Regex: `(?i)(reveal|print|repeat)\s+(your|the)\s+(system\s+)?prompt`},
		},
		PII: []Pattern{
			{Name: "ssn", Regex: `\b\d{3}-\d{2}-\d{4}\b`},
			{Name: "credit_card", Regex: `\b(?:\d[ -]?){15}\d\b`},
			{Name: "drivers_license", Regex: `\b[A-Z]\d{7,12}\b`},
		},
		Response: []Pattern{
			{Name: "script_tag", Regex: `(?i)<\s*script\b`},
			{Name: "eval_call", Regex: `(?i)\beval\s*\(`},
			{Name: "function_constructor", Regex: `(?i)new\s+Function\s*\(`},
			{Name: "dom_access", Regex: `(?i)\b(document|window)\s*\.`},
			{Name: "storage_access", Regex: `(?i)\b(localStorage|sessionStorage|indexedDB)\b`},
			{Name: "javascript_uri", Regex: `(?i)javascript\s*:`},
		},
	}
	if err := set.compile(); err != nil {
		// Compiled-in patterns are tested; a failure here is a programming error.
		panic(err)
	}
	return set
}

// LoadPatternSet reads a YAML pattern file, falling back to the defaults
// when path is empty. Unparseable files are an error, not a silent default:
// a truncated rules file must not quietly weaken redaction.
func LoadPatternSet(path string) (*PatternSet, error) {
	if path == "" {
		return DefaultPatternSet(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	var set PatternSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}
	if len(set.Injection) == 0 && len(set.PII) == 0 && len(set.Response) == 0 {
		return nil, fmt.Errorf("pattern file %s contains no rules", path)
	}
	if err := set.compile(); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *PatternSet) compile() error {
	for _, group := range [][]Pattern{s.Injection, s.PII, s.Response} {
		for i := range group {
			re, err := regexp.Compile(group[i].Regex)
			if err != nil {
				return fmt.Errorf("pattern %q: %w", group[i].Name, err)
			}
			group[i].compiled = re
		}
	}
	return nil
}
