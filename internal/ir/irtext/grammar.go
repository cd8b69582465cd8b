package irtext

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var airLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `;[^\n]*`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
		{"Global", `@[a-zA-Z_$.][a-zA-Z0-9_$.]*|@[0-9]+`, nil},
		{"Local", `%[a-zA-Z0-9_$.]+`, nil},
		{"Label", `[a-zA-Z_$.][a-zA-Z0-9_$.]*:`, nil},
		{"Float", `-?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`, nil},
		{"Int", `-?[0-9]+`, nil},
		{"Ellipsis", `\.\.\.`, nil},
		{"Ident", `[a-zA-Z_$.][a-zA-Z0-9_$.]*`, nil},
		{"Punct", `[][{}()<>=,]`, nil},
	},
})

// File is the syntax tree of one .air file.
type File struct {
	Entries []*Entry `@@*`
}

type Entry struct {
	Pos     lexer.Position
	Global  *GlobalDef `  @@`
	Declare *Signature `| "declare" @@`
	Define  *FuncDef   `| "define" @@`
}

type GlobalDef struct {
	Pos  lexer.Position
	Name string      `@Global "="`
	Body *GlobalBody `@@`
}

type GlobalBody struct {
	External *TypeExpr   `  "external" "global" @@`
	Def      *GlobalInit `| @@`
}

type GlobalInit struct {
	Kind string      `@( "global" | "constant" )`
	Type *TypeExpr   `@@`
	Init *ConstValue `@@`
}

type Signature struct {
	Pos    lexer.Position
	Result *TypeExpr `@@`
	Name   string    `@Global`
	Params []*Param  `"(" ( @@ ( "," @@ )* )? ")"`
}

type Param struct {
	Variadic bool      `  @Ellipsis`
	Type     *TypeExpr `| @@`
	Name     string    `  @Local?`
}

type FuncDef struct {
	Signature *Signature `@@`
	Blocks    []*Block   `"{" @@+ "}"`
}

type Block struct {
	Pos    lexer.Position
	Label  string   `@Label`
	Instrs []*Instr `@@+`
}

type TypeExpr struct {
	Pos    lexer.Position
	Array  *SeqType    `  "[" @@ "]"`
	Vector *SeqType    `| "<" @@ ">"`
	Struct *StructType `| "{" @@ "}"`
	Name   string      `| @Ident`
}

type SeqType struct {
	Len  int       `@Int "x"`
	Elem *TypeExpr `@@`
}

type StructType struct {
	Fields []*TypeExpr `( @@ ( "," @@ )* )?`
}

// Value is an operand: a local, or a constant.
type Value struct {
	Pos   lexer.Position
	Local string      `  @Local`
	Const *ConstValue `| @@`
}

type TypedValue struct {
	Type  *TypeExpr `@@`
	Value *Value    `@@`
}

type ConstValue struct {
	Pos       lexer.Position
	Float     *string    `  @Float`
	Int       *string    `| @Int`
	Keyword   string     `| @( "null" | "zeroinitializer" | "undef" | "true" | "false" )`
	Global    string     `| @Global`
	Aggregate *Aggregate `| @@`
	GEP       *ConstGEP  `| "getelementptr" "inbounds"? "(" @@ ")"`
	Expr      *ConstExpr `| @@`
}

type TypedConst struct {
	Type  *TypeExpr   `@@`
	Value *ConstValue `@@`
}

type Aggregate struct {
	Open  string        `@( "[" | "{" | "<" )`
	Elems []*TypedConst `( @@ ( "," @@ )* )?`
	Close string        `@( "]" | "}" | ">" )`
}

type ConstGEP struct {
	Source   *TypeExpr     `@@`
	Operands []*TypedConst `( "," @@ )+`
}

// ConstExpr covers binary operators, comparisons, casts and select over
// constants.
type ConstExpr struct {
	Op       string        `@Ident`
	Pred     string        `@Ident?`
	Operands []*TypedConst `"(" @@ ( "," @@ )*`
	To       *TypeExpr     `( "to" @@ )? ")"`
}

type Instr struct {
	Pos    lexer.Position
	Result string     `( @Local "=" )?`
	Op     *Operation `@@`
}

type Operation struct {
	Alloca       *TypeExpr     `  "alloca" @@`
	Load         *Load         `| "load" @@`
	Store        *Store        `| "store" @@`
	GEP          *GEP          `| "getelementptr" "inbounds"? @@`
	Phi          *Phi          `| "phi" @@`
	Select       *Select       `| "select" @@`
	Call         *Call         `| "call" @@`
	Br           *Br           `| "br" @@`
	Switch       *Switch       `| "switch" @@`
	Ret          *Ret          `| "ret" @@`
	Unreachable  bool          `| @"unreachable"`
	FNeg         *TypedValue   `| "fneg" @@`
	ExtractValue *ExtractValue `| "extractvalue" @@`
	InsertValue  *InsertValue  `| "insertvalue" @@`
	ExtractElem  *Operands     `| "extractelement" @@`
	InsertElem   *Operands     `| "insertelement" @@`
	Shuffle      *Operands     `| "shufflevector" @@`
	Compare      *Compare      `| @@`
	Cast         *Cast         `| @@`
	Binary       *Binary       `| @@`
}

type Load struct {
	Type *TypeExpr   `@@ ","`
	Ptr  *TypedValue `@@`
}

type Store struct {
	Value *TypedValue `@@ ","`
	Ptr   *TypedValue `@@`
}

type GEP struct {
	Source  *TypeExpr     `@@`
	Ptr     *TypedValue   `"," @@`
	Indices []*TypedValue `( "," @@ )*`
}

type Phi struct {
	Type  *TypeExpr  `@@`
	Edges []*PhiEdge `@@ ( "," @@ )*`
}

type PhiEdge struct {
	Value *Value `"[" @@ ","`
	Block string `@Local "]"`
}

type Select struct {
	Cond *TypedValue `@@ ","`
	Then *TypedValue `@@ ","`
	Else *TypedValue `@@`
}

type Call struct {
	Result *TypeExpr     `@@`
	Callee *Value        `@@`
	Args   []*TypedValue `"(" ( @@ ( "," @@ )* )? ")"`
}

type Br struct {
	Dest string      `  "label" @Local`
	Cond *TypedValue `| @@`
	Then string      `  "," "label" @Local`
	Else string      `  "," "label" @Local`
}

type Switch struct {
	Value   *TypedValue   `@@`
	Default string        `"," "label" @Local "["`
	Cases   []*SwitchCase `@@* "]"`
}

type SwitchCase struct {
	Value *TypedConst `@@ ","`
	Dest  string      `"label" @Local`
}

type Ret struct {
	Void  bool        `  @"void"`
	Value *TypedValue `| @@`
}

type ExtractValue struct {
	Agg     *TypedValue `@@`
	Indices []int       `( "," @Int )+`
}

type InsertValue struct {
	Agg     *TypedValue `@@ ","`
	Value   *TypedValue `@@`
	Indices []int       `( "," @Int )+`
}

type Operands struct {
	List []*TypedValue `@@ ( "," @@ )*`
}

type Compare struct {
	Op   string      `@( "icmp" | "fcmp" )`
	Pred string      `@Ident`
	X    *TypedValue `@@ ","`
	Y    *Value      `@@`
}

type Cast struct {
	Op    string      `@( "trunc" | "zext" | "sext" | "fptrunc" | "fpext" | "fptosi" | "fptoui" | "sitofp" | "uitofp" | "ptrtoint" | "inttoptr" | "bitcast" )`
	Value *TypedValue `@@`
	To    *TypeExpr   `"to" @@`
}

type Binary struct {
	Op    string      `@( "add" | "sub" | "mul" | "udiv" | "sdiv" | "urem" | "srem" | "shl" | "lshr" | "ashr" | "and" | "or" | "xor" | "fadd" | "fsub" | "fmul" | "fdiv" | "frem" )`
	Flags []string    `@( "nsw" | "nuw" | "exact" )*`
	X     *TypedValue `@@ ","`
	Y     *Value      `@@`
}
