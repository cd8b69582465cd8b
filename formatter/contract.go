package formatter

import "strings"

// ContractFormatter spells out which side of a contract was violated.
type ContractFormatter struct{}

func (f *ContractFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{contractInfo .Padding .Message}}
{{- if .Note }}
{{note .Note}}
{{- end }}
`
}

func contractInfo(padding string, message string) string {
	var info string
	switch {
	case strings.HasPrefix(message, "requires "):
		info = "the caller breaks the precondition of the callee"
	case strings.HasPrefix(message, "ensures "):
		info = "the function breaks its own postcondition"
	case strings.HasPrefix(message, "assertion "):
		info = "checked by absint.assert"
	default:
		return ""
	}
	return lineStyle.Sprintf("%s= ", padding) + info + "\n"
}
