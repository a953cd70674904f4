package cqlir

import "github.com/roach88/viewgen/internal/ir"

// Block is a query block.
type Block interface {
	blockNode()
}

// Expr is a scalar expression.
type Expr interface {
	exprNode()
}

// Predicate is a boolean condition.
type Predicate interface {
	predicateNode()
}

// Column is one projected column of a block.
type Column struct {
	Name string
	Expr Expr
}

// Scan reads one extent.
//
//	SELECT [DISTINCT] <columns> FROM <Extent> AS <Alias> [WHERE <Filter>]
type Scan struct {
	Extent   string
	Alias    string
	Columns  []Column
	Filter   Predicate // nil = no filter
	Distinct bool
}

func (*Scan) blockNode() {}

// JoinKind is the kind of join between consecutive join inputs.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftOuterJoin
	FullOuterJoin
)

func (k JoinKind) String() string {
	switch k {
	case LeftOuterJoin:
		return "LEFT OUTER JOIN"
	case FullOuterJoin:
		return "FULL OUTER JOIN"
	default:
		return "INNER JOIN"
	}
}

// Input is an aliased join input. On joins it to the inputs before it and
// is nil for the first input.
type Input struct {
	Block Block
	Alias string
	On    Predicate
}

// Join combines its inputs left to right with one kind of join.
//
//	SELECT <columns> FROM (<in1>) AS T1 <Kind> (<in2>) AS T2 ON ... [WHERE <Filter>]
type Join struct {
	Kind    JoinKind
	Inputs  []Input
	Columns []Column
	Filter  Predicate // nil = no filter
}

func (*Join) blockNode() {}

// Union is a UNION ALL of blocks projecting the same columns.
type Union struct {
	Legs []Block
}

func (*Union) blockNode() {}

// View is the top of a generated view. It reads Input under Alias and
// either constructs one value per row (Value, for query views) or projects
// named columns (Columns, for update views).
type View struct {
	Extent  string
	Input   Block
	Alias   string
	Value   Expr
	Columns []Column
	Filter  Predicate // nil = no filter
}

func (*View) blockNode() {}

// Ref reads a column of an aliased block; an empty Column reads the row
// itself.
type Ref struct {
	Alias  string
	Column string
}

func (Ref) exprNode() {}

// Const is a literal.
type Const struct {
	Value ir.Value
}

func (Const) exprNode() {}

// When is one branch of a Case.
type When struct {
	Cond Predicate
	Then Expr
}

// Case picks the first branch whose condition holds, else Else (NULL when
// nil).
type Case struct {
	Whens []When
	Else  Expr
}

func (Case) exprNode() {}

// Coalesce is the first non-null argument.
type Coalesce struct {
	Args []Expr
}

func (Coalesce) exprNode() {}

// Construct builds an instance of Type from named fields.
type Construct struct {
	Type   string
	Fields []Column
}

func (Construct) exprNode() {}

// Cond is the boolean value of a predicate.
type Cond struct {
	Pred Predicate
}

func (Cond) exprNode() {}

// Compare is Left = Right.
type Compare struct {
	Left  Expr
	Right Expr
}

func (Compare) predicateNode() {}

// In is Left IN {Values}.
type In struct {
	Left   Expr
	Values []ir.Value
}

func (In) predicateNode() {}

// IsNull is Expr IS NULL, or IS NOT NULL when Negated.
type IsNull struct {
	Expr    Expr
	Negated bool
}

func (IsNull) predicateNode() {}

// IsOf is a type test of the row read under Alias: exactly Type when
// Only, Type or a subtype otherwise.
type IsOf struct {
	Alias string
	Type  string
	Only  bool
}

func (IsOf) predicateNode() {}

// Flag is a boolean column read as a condition.
type Flag struct {
	Expr Expr
}

func (Flag) predicateNode() {}

// And holds when every predicate holds; empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or holds when some predicate holds; empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}
