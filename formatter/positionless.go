package formatter

// PositionlessFormatter renders issues whose instruction carries no
// source position.
type PositionlessFormatter struct{}

func (f *PositionlessFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn}}
{{message .Message -}}
{{location " " .Function .Block}}
{{- if .Note }}
{{note .Note}}
{{- end }}
`
}
