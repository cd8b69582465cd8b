package formatter

import "strings"

// OutOfBoundsFormatter adds the extent that was exceeded.
type OutOfBoundsFormatter struct{}

func (f *OutOfBoundsFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{location .Padding .Function .Block -}}
{{boundsInfo .Severity .Message}}
{{- if .Note }}
{{note .Note}}
{{- end }}
`
}

func boundsInfo(severity string, message string) string {
	var endString string
	endString = warningStyle.Sprint("warning: ")
	if severity == "ERROR" {
		endString += "every address reaching this access lies outside its object.\n"
	} else {
		endString += "some addresses reaching this access may lie outside their object.\n"
	}
	if _, obj, ok := strings.Cut(message, " in "); ok {
		endString += lineStyle.Sprint("object: ") + obj + "\n"
	}
	return endString
}
