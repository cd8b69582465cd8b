package formatter

import (
	"encoding/json"
	"io"

	tt "github.com/gnolang/absint/internal/types"
)

type jsonIssue struct {
	Rule     string `json:"rule"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Function string `json:"function,omitempty"`
	Block    string `json:"block,omitempty"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	Note     string `json:"note,omitempty"`
}

// WriteJSON writes issues grouped by file name as one JSON object.
func WriteJSON(w io.Writer, issues []tt.Issue) error {
	byFile := make(map[string][]jsonIssue)
	for _, i := range issues {
		byFile[i.Filename] = append(byFile[i.Filename], jsonIssue{
			Rule:     i.Rule,
			Category: i.Category,
			Severity: i.Severity.String(),
			Function: i.Function,
			Block:    i.Block,
			Line:     i.Start.Line,
			Column:   i.Start.Column,
			Message:  i.Message,
			Note:     i.Note,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(byFile)
}
