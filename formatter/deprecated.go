package formatter

import "strings"

type DeprecatedFuncFormatter struct{}

func (f *DeprecatedFuncFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{suggestion (alternative .Message) .Padding}}
{{- if .Note }}
{{note .Note}}
{{- end }}
`
}

// alternative extracts the suggested replacement from a deprecation
// message.
func alternative(message string) string {
	_, alt, ok := strings.Cut(message, ", use ")
	if !ok {
		return ""
	}
	return "call " + strings.TrimSuffix(alt, " instead") + " instead"
}
