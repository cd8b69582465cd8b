package types

import (
	"fmt"
	"go/token"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity ranks a defect.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	}
	return "UNKNOWN"
}

// ParseSeverity accepts the names printed by String, in any case.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return SeverityError, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "INFO":
		return SeverityInfo, nil
	}
	return SeverityError, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalYAML() (any, error) {
	return strings.ToLower(s.String()), nil
}

func (s *Severity) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseSeverity(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = v
	return nil
}

// ConfigRule is the per-rule section of the configuration file.
type ConfigRule struct {
	Severity Severity `yaml:"severity"`
	Data     any      `yaml:"data,omitempty"`
}

// Issue is a defect found in the analyzed module.
type Issue struct {
	Rule     string
	Category string
	Filename string
	// Function and Block locate the offending instruction in the IR.
	Function string
	Block    string
	Message  string
	Note     string
	Severity Severity
	Start    token.Position
	End      token.Position
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s (%s)", i.Start, i.Rule, i.Message, i.Severity)
}
