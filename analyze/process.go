package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	tt "github.com/gnolang/absint/internal/types"
)

const maxShowRecentFiles = 10

// Progress receives the directory progress display. Nil disables it.
var Progress io.Writer = os.Stderr

func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine AnalysisEngine,
	paths []string,
	processor func(AnalysisEngine, string) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for _, path := range paths {
		issues, err := ProcessPath(ctx, logger, engine, path, processor)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return allIssues, err
		}
		allIssues = append(allIssues, issues...)
	}

	return allIssues, nil
}

// ProcessPath analyzes path, or every supported file below it when it is
// a directory. Files are analyzed concurrently; the issues of the files
// that succeeded are returned along with the joined errors of the others.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine AnalysisEngine,
	path string,
	processor func(AnalysisEngine, string) ([]tt.Issue, error),
) ([]tt.Issue, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	issues := []tt.Issue{}
	if !info.IsDir() {
		if !hasDesiredExtension(path) {
			return issues, nil
		}
		fileIssues, err := processor(engine, path)
		if err != nil {
			return issues, err
		}
		return append(issues, fileIssues...), nil
	}

	files, err := collectFiles(path)
	if err != nil {
		return issues, err
	}

	type fileResult struct {
		path   string
		issues []tt.Issue
		err    error
	}
	results := make(chan fileResult, len(files))

	display := newRecentFiles(Progress)
	bar := newProgressBar(path, len(files))

	// limit the number of workers
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	var cancelled error

dispatch:
	for _, filePath := range files {
		if cancelled = ctx.Err(); cancelled != nil {
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			defer func() { <-sem }()

			display.add(filepath.Base(fp))
			fileIssues, err := processor(engine, fp)
			if err != nil && logger != nil {
				logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
			}
			results <- fileResult{path: fp, issues: fileIssues, err: err}
			if bar != nil {
				_ = bar.Add(1)
			}
		}(filePath)
	}
	wg.Wait()
	close(results)

	var collected []fileResult
	for r := range results {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].path < collected[j].path })

	var errs []error
	for _, r := range collected {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.path, r.err))
			continue
		}
		issues = append(issues, r.issues...)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if cancelled != nil {
		return issues, cancelled
	}
	return issues, errors.Join(errs...)
}

func ProcessFile(engine AnalysisEngine, filePath string) ([]tt.Issue, error) {
	return engine.Run(filePath)
}

func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && hasDesiredExtension(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", root, err)
	}
	return files, nil
}

var desiredExtensions = map[string]bool{
	".air": true,
	".go":  true,
}

func hasDesiredExtension(path string) bool {
	return desiredExtensions[filepath.Ext(path)]
}

func newProgressBar(path string, n int) *progressbar.ProgressBar {
	if Progress == nil {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(Progress),
		progressbar.OptionSetDescription(path),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// recentFiles redraws the names of the last files started above the
// progress bar.
type recentFiles struct {
	mu    sync.Mutex
	w     io.Writer
	names []string
}

func newRecentFiles(w io.Writer) *recentFiles {
	r := &recentFiles{w: w, names: make([]string, maxShowRecentFiles)}
	if w == nil {
		return r
	}
	// make space for the list
	for range maxShowRecentFiles + 1 {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\033[%dA", maxShowRecentFiles+1)
	return r
}

func (r *recentFiles) add(name string) {
	if r.w == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	copy(r.names[1:], r.names[:len(r.names)-1])
	r.names[0] = name

	fmt.Fprintf(r.w, "\033[%dA", maxShowRecentFiles)
	for _, n := range r.names {
		// \033[2K: clear the line
		fmt.Fprintf(r.w, "\033[2K\r%s\n", n)
	}
}
