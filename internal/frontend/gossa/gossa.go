// Package gossa lowers a Go source file to the analyzer IR through the
// SSA form of golang.org/x/tools/go/ssa.
//
// Functions of the package are lowered one to one. Constructs without an
// IR counterpart (interfaces, maps, channels, closures, goroutines) are
// lowered to calls of variadic declarations named gossa.unknown.<type>
// taking the construct's operands, so the analysis sees an unknown
// result and havocs whatever memory the operands reach.
//
// A function whose doc comment carries //absint:assert, //absint:assume
// or //absint:nondet is not lowered; calls to it go to the analyzer
// intrinsic of the same name instead.
package gossa

import (
	"errors"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/gnolang/absint/internal/ir"
)

// ErrBuild reports Go source that does not type-check.
var ErrBuild = errors.New("cannot build SSA")

const (
	unknownPrefix = "gossa.unknown."
	effectName    = "gossa.effect"
	directive     = "//absint:"
)

// LoadFile parses, type-checks and lowers the Go file at path.
func LoadFile(path string, logger *zap.Logger) (*ir.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return Load(path, src, logger)
}

// Load lowers the single-file package in src. Imports are type-checked
// from source.
func Load(filename string, src []byte, logger *zap.Logger) (*ir.Module, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	conf := &types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	pkg := types.NewPackage(f.Name.Name, f.Name.Name)
	spkg, _, err := ssautil.BuildPackage(conf, fset, pkg, []*ast.File{f}, ssa.InstantiateGenerics)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBuild, filename, err)
	}
	m, err := Lower(spkg, logger)
	if err != nil {
		return nil, err
	}
	m.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	m.Source = filename
	return m, nil
}

// Lower translates the functions of a built SSA package.
func Lower(pkg *ssa.Package, logger *zap.Logger) (*ir.Module, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &lowerer{
		pkg:       pkg,
		fset:      pkg.Prog.Fset,
		log:       logger,
		m:         ir.NewModule(pkg.Pkg.Name()),
		funcs:     make(map[*ssa.Function]*ir.Function),
		globals:   make(map[*ssa.Global]*ir.Global),
		strings:   make(map[string]ir.Constant),
		externs:   make(map[string]*ir.Function),
		initStore: initialStores(pkg),
	}
	srcFuncs := l.sourceFunctions()
	for _, fn := range srcFuncs {
		if name := intrinsicOf(fn); name != "" {
			l.funcs[fn] = l.extern(name, signature(fn.Signature), false)
			continue
		}
		f := l.m.NewFunction(l.funcName(fn), signature(fn.Signature), paramNames(fn)...)
		f.Pos = l.fset.Position(fn.Pos())
		l.funcs[fn] = f
	}
	for _, fn := range srcFuncs {
		if intrinsicOf(fn) != "" {
			continue
		}
		fl := &funcLowerer{lowerer: l, src: fn, fn: l.funcs[fn], values: make(map[ssa.Value]ir.Value)}
		if err := fl.lower(); err != nil {
			return nil, fmt.Errorf("lowering %s: %w", fn, err)
		}
	}
	if err := ir.Verify(l.m); err != nil {
		return nil, err
	}
	return l.m, nil
}

type lowerer struct {
	pkg  *ssa.Package
	fset *token.FileSet
	log  *zap.Logger
	m    *ir.Module

	funcs   map[*ssa.Function]*ir.Function
	globals map[*ssa.Global]*ir.Global
	strings map[string]ir.Constant
	externs map[string]*ir.Function

	initStore map[*ssa.Global]ssa.Value
}

// sourceFunctions returns the functions of pkg with a body the lowering
// handles: no type parameters, no free variables, no wrappers. The
// package initializers are left out; their effect on globals is folded
// into the global initializers.
func (l *lowerer) sourceFunctions() []*ssa.Function {
	var fns []*ssa.Function
	for fn := range ssautil.AllFunctions(l.pkg.Prog) {
		switch {
		case fn.Pkg != l.pkg, fn.Blocks == nil, fn.Synthetic != "",
			len(fn.FreeVars) > 0, fn.TypeParams().Len() > 0, isInit(fn):
			continue
		}
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool {
		if fns[i].Pos() != fns[j].Pos() {
			return fns[i].Pos() < fns[j].Pos()
		}
		return fns[i].String() < fns[j].String()
	})
	return fns
}

func isInit(fn *ssa.Function) bool {
	return fn.Parent() == nil && (fn.Name() == "init" || strings.HasPrefix(fn.Name(), "init#"))
}

func (l *lowerer) funcName(fn *ssa.Function) string {
	if fn.Pkg == l.pkg {
		return fn.RelString(l.pkg.Pkg)
	}
	return fn.String()
}

func paramNames(fn *ssa.Function) []string {
	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name()
	}
	return names
}

// intrinsicOf returns the analyzer intrinsic fn stands for, if any.
func intrinsicOf(fn *ssa.Function) string {
	decl, ok := fn.Syntax().(*ast.FuncDecl)
	if !ok || decl.Doc == nil {
		return ""
	}
	for _, c := range decl.Doc.List {
		kind, ok := strings.CutPrefix(c.Text, directive)
		if !ok {
			continue
		}
		switch kind {
		case "assert", "assume", "nondet":
			return "absint." + kind
		}
	}
	return ""
}

// extern returns the declaration called name, adding it with sig on first
// use.
func (l *lowerer) extern(name string, sig *ir.Type, variadic bool) *ir.Function {
	if f, ok := l.externs[name]; ok {
		return f
	}
	sig.Variadic = variadic
	f := l.m.NewFunction(name, sig)
	l.externs[name] = f
	return f
}

// function returns the IR function called for fn: the lowered body when
// it has one, a declaration otherwise.
func (l *lowerer) function(fn *ssa.Function) *ir.Function {
	if f, ok := l.funcs[fn]; ok {
		return f
	}
	f := l.extern(l.funcName(fn), signature(fn.Signature), fn.Signature.Variadic())
	l.funcs[fn] = f
	return f
}

// global returns the IR global of g. Its initializer is the constant the
// package initializer stores, zero when nothing is stored and unknown when
// the stored value is not constant.
func (l *lowerer) global(g *ssa.Global) *ir.Global {
	if ig, ok := l.globals[g]; ok {
		return ig
	}
	t := lowerType(g.Type().(*types.Pointer).Elem())
	name := g.Name()
	if g.Pkg != l.pkg {
		name = g.String()
	}
	var init ir.Constant
	switch v, stored := l.initStore[g]; {
	case !stored && g.Pkg == l.pkg:
		init = &ir.ConstZero{Typ: t}
	case v != nil:
		if c, ok := v.(*ssa.Const); ok {
			init = l.constant(c)
		}
	}
	ig := l.m.NewGlobal(name, t, init)
	ig.Pos = l.fset.Position(g.Pos())
	l.globals[g] = ig
	return ig
}

// initialStores collects what the package initializers store into each
// global of pkg. A global written more than once, or through a derived
// address, maps to nil.
func initialStores(pkg *ssa.Package) map[*ssa.Global]ssa.Value {
	stores := make(map[*ssa.Global]ssa.Value)
	for fn := range ssautil.AllFunctions(pkg.Prog) {
		if fn.Pkg != pkg || !isInit(fn) {
			continue
		}
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				st, ok := instr.(*ssa.Store)
				if !ok {
					continue
				}
				if g, ok := st.Addr.(*ssa.Global); ok {
					if _, seen := stores[g]; seen {
						stores[g] = nil
					} else {
						stores[g] = st.Val
					}
					continue
				}
				if g := rootGlobal(st.Addr); g != nil {
					stores[g] = nil
				}
			}
		}
	}
	return stores
}

func rootGlobal(v ssa.Value) *ssa.Global {
	for {
		switch x := v.(type) {
		case *ssa.Global:
			return x
		case *ssa.FieldAddr:
			v = x.X
		case *ssa.IndexAddr:
			v = x.X
		default:
			return nil
		}
	}
}

// stringConst returns the {ptr, len} constant of s, backed by a constant
// byte array global.
func (l *lowerer) stringConst(s string) ir.Constant {
	if c, ok := l.strings[s]; ok {
		return c
	}
	var ptr ir.Constant = &ir.ConstNull{Typ: ir.Ptr}
	if s != "" {
		bytes := make([]ir.Constant, len(s))
		for i := 0; i < len(s); i++ {
			bytes[i] = ir.NewInt(ir.I8, int64(s[i]))
		}
		at := ir.ArrayOf(ir.I8, len(s))
		g := l.m.NewGlobal(fmt.Sprintf("str.%d", len(l.strings)), at, &ir.ConstAggregate{Typ: at, Elems: bytes})
		g.IsConst = true
		ptr = g
	}
	c := &ir.ConstAggregate{Typ: stringType, Elems: []ir.Constant{ptr, ir.NewInt(ir.I64, int64(len(s)))}}
	l.strings[s] = c
	return c
}
