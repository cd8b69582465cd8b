package types

import (
	"os"
	"strings"
)

// SourceCode stores the lines of an analyzed file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads filename and splits it into lines.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return NewSourceCode(string(content)), nil
}

func NewSourceCode(content string) *SourceCode {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return &SourceCode{Lines: strings.Split(content, "\n")}
}
