package engine

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

//go:embed playbook_default.yaml
var defaultPlaybookYAML []byte

const factorPlaceholder = "{factor}"

// Playbook maps risk factors onto mitigation actions per urgency.
type Playbook struct {
	Rules   []PlaybookRule            `yaml:"rules"`
	Generic map[models.Urgency]string `yaml:"generic"`
}

// PlaybookRule contributes actions when a driving factor matches.
type PlaybookRule struct {
	ID      string         `yaml:"id"`
	Urgency models.Urgency `yaml:"urgency"`
	Match   PlaybookMatch  `yaml:"match"`
	Actions []string       `yaml:"actions"`
}

// PlaybookMatch holds optional match attributes; empty fields match everything.
type PlaybookMatch struct {
	FactorContains []string     `yaml:"factor_contains"`
	Trend          models.Trend `yaml:"trend"`
}

// DefaultPlaybook returns the embedded playbook.
func DefaultPlaybook() *Playbook {
	playbook, err := ParsePlaybook(defaultPlaybookYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded playbook: %v", err))
	}
	return playbook
}

// LoadPlaybook reads a playbook file. An empty path or a missing file yields the default.
func LoadPlaybook(path string) (*Playbook, error) {
	if path == "" {
		return DefaultPlaybook(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPlaybook(), nil
		}
		return nil, err
	}
	return ParsePlaybook(data)
}

// ParsePlaybook decodes and validates a YAML playbook.
func ParsePlaybook(data []byte) (*Playbook, error) {
	var playbook Playbook
	if err := yaml.Unmarshal(data, &playbook); err != nil {
		return nil, fmt.Errorf("decode playbook: %w", err)
	}
	for i, rule := range playbook.Rules {
		switch rule.Urgency {
		case models.UrgencyImmediate, models.UrgencyShortTerm, models.UrgencyStrategic:
		default:
			return nil, fmt.Errorf("playbook rule %d (%s): unknown urgency %q", i, rule.ID, rule.Urgency)
		}
	}
	return &playbook, nil
}

// Actions returns the action texts for a factor driving the given bucket. When no rule
// matches, the generic template for that urgency is used.
func (p *Playbook) Actions(urgency models.Urgency, factor models.RiskFactor) []string {
	var out []string
	if p != nil {
		for _, rule := range p.Rules {
			if rule.Urgency != urgency || !rule.Match.matches(factor) {
				continue
			}
			for _, action := range rule.Actions {
				out = append(out, expandAction(action, factor))
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	return []string{expandAction(p.generic(urgency), factor)}
}

func (p *Playbook) generic(urgency models.Urgency) string {
	if p != nil {
		if text, ok := p.Generic[urgency]; ok && text != "" {
			return text
		}
	}
	switch urgency {
	case models.UrgencyImmediate:
		return "Mitigate " + factorPlaceholder + " immediately"
	case models.UrgencyShortTerm:
		return "Schedule remediation for " + factorPlaceholder
	default:
		return "Monitor " + factorPlaceholder
	}
}

func (m PlaybookMatch) matches(factor models.RiskFactor) bool {
	if m.Trend != "" && m.Trend != factor.Trend {
		return false
	}
	if len(m.FactorContains) == 0 {
		return true
	}
	name := strings.ToLower(factor.Name)
	for _, kw := range m.FactorContains {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func expandAction(action string, factor models.RiskFactor) string {
	return strings.ReplaceAll(action, factorPlaceholder, factor.Name)
}
