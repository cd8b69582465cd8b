// Package analyze drives the analysis of source files: it loads a file
// into the IR, runs the fixpoint driver over it and checks the result.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/absint/internal/analysis/interp"
	"github.com/gnolang/absint/internal/checker"
	"github.com/gnolang/absint/internal/frontend/gossa"
	"github.com/gnolang/absint/internal/ir"
	"github.com/gnolang/absint/internal/ir/irtext"
	"github.com/gnolang/absint/internal/nolint"
	"github.com/gnolang/absint/internal/store"
	tt "github.com/gnolang/absint/internal/types"
)

// ErrUnsupportedFile reports a file no front-end reads.
var ErrUnsupportedFile = errors.New("unsupported file type")

type AnalysisEngine interface {
	Run(filePath string) ([]tt.Issue, error)
	IgnoreRule(rule string)
}

// Engine analyzes files one at a time. Run is safe for concurrent use.
type Engine struct {
	config    Config
	contracts *checker.Contracts
	logger    *zap.Logger

	// digest identifies the configuration and contracts in cache keys.
	digest []byte

	mu      sync.RWMutex
	ignored map[string]bool
	store   *store.Store
	cache   *Cache
}

// Analysis is the converged analysis of one module.
type Analysis struct {
	Module *ir.Module
	Interp *interp.Interpreter
	Result *interp.Result
}

// New creates an engine for config, reading its contracts file if any.
func New(config Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		config:  config,
		logger:  logger,
		ignored: make(map[string]bool),
	}
	digest, err := yaml.Marshal(config)
	if err != nil {
		return nil, err
	}
	if config.Contracts != "" {
		data, err := os.ReadFile(config.Contracts)
		if err != nil {
			return nil, fmt.Errorf("loading contracts: %w", err)
		}
		c, err := checker.ParseContracts(data)
		if err != nil {
			return nil, fmt.Errorf("loading contracts: %w", err)
		}
		e.contracts = c
		digest = append(digest, data...)
	}
	e.digest = digest
	return e, nil
}

// NewFromFile creates an engine for the configuration file at path.
func NewFromFile(configPath string, logger *zap.Logger) (*Engine, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return New(config, logger)
}

func (e *Engine) Config() Config { return e.config }

func (e *Engine) IgnoreRule(rule string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignored[rule] = true
}

// SetStore makes Run persist every analysis into s.
func (e *Engine) SetStore(s *store.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = s
}

// SetCache makes Run reuse the issues c holds for unchanged files. Runs
// answered from the cache are not recorded in the store.
func (e *Engine) SetCache(c *Cache) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = c
}

// Load reads the module at path with the front-end of its extension.
func (e *Engine) Load(path string) (*ir.Module, error) {
	switch filepath.Ext(path) {
	case ".air":
		return irtext.ParseFile(path)
	case ".go":
		return gossa.LoadFile(path, e.logger)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
}

// LoadSource is Load for an in-memory file; filename selects the
// front-end.
func (e *Engine) LoadSource(filename string, src []byte) (*ir.Module, error) {
	switch filepath.Ext(filename) {
	case ".air":
		return irtext.Parse(filename, src)
	case ".go":
		return gossa.Load(filename, src, e.logger)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
}

// Analyze runs the fixpoint driver over m.
func (e *Engine) Analyze(m *ir.Module) (*Analysis, error) {
	ctx, err := interp.NewContext(m, e.config.Analysis, e.logger.With(zap.String("module", m.Name)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	in := interp.New(ctx)
	res, err := in.Run()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	return &Analysis{Module: m, Interp: in, Result: res}, nil
}

// Check runs the enabled rules over a.
func (e *Engine) Check(a *Analysis) ([]tt.Issue, error) {
	e.mu.RLock()
	ignore := make(map[string]bool, len(e.ignored))
	for rule := range e.ignored {
		ignore[rule] = true
	}
	e.mu.RUnlock()

	severity := make(map[string]tt.Severity, len(e.config.Rules))
	for name, rule := range e.config.Rules {
		severity[name] = rule.Severity
	}
	return checker.Run(a.Interp, a.Result, checker.Default(e.contracts), checker.Options{
		Filename: a.Module.Source,
		Severity: severity,
		Ignore:   ignore,
	})
}

func (e *Engine) Run(filePath string) ([]tt.Issue, error) {
	if !hasDesiredExtension(filePath) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filePath)
	}
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	e.mu.RLock()
	cache := e.cache
	ignored := make([]string, 0, len(e.ignored))
	for rule := range e.ignored {
		ignored = append(ignored, rule)
	}
	e.mu.RUnlock()
	if cache == nil {
		return e.RunSource(filePath, src)
	}

	sort.Strings(ignored)
	hash := contentHash(src, e.digest, []byte(strings.Join(ignored, ",")))
	if issues, ok := cache.get(filePath, hash); ok {
		e.logger.Debug("cache hit", zap.String("file", filePath))
		return issues, nil
	}
	issues, err := e.RunSource(filePath, src)
	if err != nil {
		return nil, err
	}
	cache.set(filePath, hash, issues)
	return issues, nil
}

// RunSource analyzes src as the file filename. Issues silenced by nolint
// comments are dropped.
func (e *Engine) RunSource(filename string, src []byte) ([]tt.Issue, error) {
	m, err := e.LoadSource(filename, src)
	if err != nil {
		return nil, err
	}
	suppressed, err := nolint.Parse(filename, src)
	if err != nil {
		return nil, err
	}
	return e.run(m, suppressed)
}

func (e *Engine) run(m *ir.Module, suppressed *nolint.Manager) ([]tt.Issue, error) {
	a, err := e.Analyze(m)
	if err != nil {
		return nil, err
	}
	issues, err := e.Check(a)
	if err != nil {
		return nil, err
	}
	issues = suppressed.Filter(issues)
	e.logger.Debug("analyzed module",
		zap.String("module", m.Name),
		zap.Int("functions", len(a.Result.Functions)),
		zap.Int("issues", len(issues)))

	e.mu.RLock()
	s := e.store
	e.mu.RUnlock()
	if s != nil {
		if err := e.save(s, a, issues); err != nil {
			return issues, err
		}
	}
	return issues, nil
}

func (e *Engine) save(s *store.Store, a *Analysis, issues []tt.Issue) error {
	states, err := store.Dumps(a.Result)
	if err != nil {
		return err
	}
	config, err := yaml.Marshal(e.config)
	if err != nil {
		return err
	}
	id, err := s.SaveRun(context.Background(), &store.Run{
		Module:  a.Module.Name,
		Config:  string(config),
		Defects: issues,
		States:  states,
	})
	if err != nil {
		return err
	}
	e.logger.Debug("saved run", zap.String("module", a.Module.Name), zap.String("run", id))
	return nil
}
