package evidence

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Parameter is one weighted dimension of the match score. Keywords are the
// terms searched for verbatim; aliases widen the net (e.g. "k8s" for
// "kubernetes") without changing the parameter identity.
type Parameter struct {
	Name     string   `yaml:"name" json:"name"`
	Weight   float64  `yaml:"weight" json:"weight"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Aliases  []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Taxonomy is the fixed parameter set a scoring run evaluates against.
type Taxonomy struct {
	Parameters []Parameter `yaml:"parameters" json:"parameters"`
}

// DefaultTaxonomy returns the compiled-in parameter set. Weights sum to 1.0.
func DefaultTaxonomy() *Taxonomy {
	t := &Taxonomy{Parameters: []Parameter{
		{
			Name:     "core_technical_skills",
			Weight:   0.25,
			Keywords: []string{"python", "go", "java", "typescript", "javascript", "rust", "c++", "sql"},
			Aliases:  []string{"golang", "js", "ts", "postgres", "postgresql", "mysql"},
		},
		{
			Name:     "infrastructure",
			Weight:   0.20,
			Keywords: []string{"kubernetes", "docker", "terraform", "aws", "gcp", "azure"},
			Aliases:  []string{"k8s", "containers", "iac", "amazon web services", "google cloud"},
		},
		{
			Name:     "data_systems",
			Weight:   0.15,
			Keywords: []string{"kafka", "redis", "elasticsearch", "spark", "airflow"},
			Aliases:  []string{"streaming", "message queue", "caching"},
		},
		{
			Name:     "experience_level",
			Weight:   0.15,
			Keywords: []string{"senior", "staff", "lead", "principal"},
			Aliases:  []string{"tech lead", "team lead"},
		},
		{
			Name:     "domain_knowledge",
			Weight:   0.10,
			Keywords: []string{"fintech", "healthcare", "ecommerce", "saas", "security"},
			Aliases:  []string{"payments", "compliance", "hipaa"},
		},
		{
			Name:     "collaboration",
			Weight:   0.10,
			Keywords: []string{"mentoring", "cross-functional", "stakeholders", "agile"},
			Aliases:  []string{"mentored", "scrum", "pairing"},
		},
		{
			Name:     "education",
			Weight:   0.05,
			Keywords: []string{"bachelor", "master", "phd", "degree"},
			Aliases:  []string{"bs", "ms", "computer science"},
		},
	}}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

// LoadTaxonomy reads a YAML taxonomy file, falling back to the defaults when
// path is empty.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks parameter shape and that weights sum to 1.0 within a
// small tolerance. The overall score is only bounded to [0,1] when they do.
func (t *Taxonomy) Validate() error {
	if len(t.Parameters) == 0 {
		return fmt.Errorf("taxonomy has no parameters")
	}
	var sum float64
	seen := make(map[string]bool, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Name == "" {
			return fmt.Errorf("taxonomy parameter missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate taxonomy parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.Weight <= 0 {
			return fmt.Errorf("parameter %q weight must be positive, got %v", p.Name, p.Weight)
		}
		if len(p.Keywords) == 0 {
			return fmt.Errorf("parameter %q has no keywords", p.Name)
		}
		sum += p.Weight
	}
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("taxonomy weights sum to %v, want 1.0", sum)
	}
	return nil
}
