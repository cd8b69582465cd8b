package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSeverityYAML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Severity
		err  bool
	}{
		{"severity: error", SeverityError, false},
		{"severity: WARNING", SeverityWarning, false},
		{"severity: warn", SeverityWarning, false},
		{"severity: info", SeverityInfo, false},
		{"severity: loud", SeverityError, true},
	}
	for _, tt := range tests {
		var rule ConfigRule
		err := yaml.Unmarshal([]byte(tt.in), &rule)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, rule.Severity, tt.in)
	}

	out, err := yaml.Marshal(ConfigRule{Severity: SeverityWarning})
	require.NoError(t, err)
	assert.Equal(t, "severity: warning\n", string(out))
}
