package vector

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Filter is a compiled attribute filter.
//
// The expression is a SQL WHERE clause, parsed with sqlparser: AND, OR, NOT,
// comparisons, [NOT] IN, [NOT] LIKE, [NOT] BETWEEN, IS [NOT] NULL and
// arithmetic on numbers. Identifiers may be double quoted; FID names the
// feature id unless a column of that name exists.
//
// Keywords are case insensitive. LIKE uses % and _ wildcards and ignores
// case. Comparisons involving null are false.
type Filter struct {
	src  string
	root node
	cols []int
}

// CompileFilter parses where against schema. Column names are resolved case
// insensitively; an unknown column is an error.
func CompileFilter(where string, schema *Schema) (*Filter, error) {
	stmt, err := sqlparser.Parse("select * from t where " + quoteIdentifiers(where))
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", where, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || sel.Where == nil || sel.GroupBy != nil || sel.Having != nil ||
		sel.OrderBy != nil || sel.Limit != nil || sel.Lock != "" {
		return nil, fmt.Errorf("filter %q: not a plain condition", where)
	}

	c := &filterCompiler{schema: schema}
	root, err := c.compile(sel.Where.Expr)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", where, err)
	}
	return &Filter{src: where, root: root, cols: c.cols}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.src }

// Columns returns the indices of the columns the expression reads, in order
// of first use.
func (f *Filter) Columns() []int { return append([]int(nil), f.cols...) }

// Match evaluates the filter against a feature.
func (f *Filter) Match(feat *Feature) bool {
	return truthy(f.root.eval(feat))
}

// quoteIdentifiers rewrites "quoted" identifiers to the backtick form the
// parser reads, and doubles backslashes inside 'strings' so they stay
// literal.
func quoteIdentifiers(where string) string {
	var b strings.Builder
	for i := 0; i < len(where); i++ {
		ch := where[i]
		switch ch {
		case '\'':
			b.WriteByte(ch)
			for i++; i < len(where); i++ {
				if where[i] == '\\' {
					b.WriteByte('\\')
				}
				b.WriteByte(where[i])
				if where[i] == '\'' {
					if i+1 < len(where) && where[i+1] == '\'' {
						i++
						b.WriteByte('\'')
						continue
					}
					break
				}
			}
		case '"':
			// an unterminated identifier stays unterminated
			b.WriteByte('`')
			for i++; i < len(where); i++ {
				if where[i] == '"' {
					if i+1 < len(where) && where[i+1] == '"' {
						i++
						b.WriteByte('"')
						continue
					}
					b.WriteByte('`')
					break
				}
				if where[i] == '`' {
					b.WriteByte('`')
				}
				b.WriteByte(where[i])
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

type filterCompiler struct {
	schema *Schema
	cols   []int
}

func (c *filterCompiler) compile(e sqlparser.Expr) (node, error) {
	switch e := e.(type) {
	case *sqlparser.AndExpr:
		l, r, err := c.pair(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &logicNode{left: l, right: r}, nil
	case *sqlparser.OrExpr:
		l, r, err := c.pair(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &logicNode{or: true, left: l, right: r}, nil
	case *sqlparser.NotExpr:
		inner, err := c.compile(e.Expr)
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	case *sqlparser.ParenExpr:
		return c.compile(e.Expr)
	case *sqlparser.ComparisonExpr:
		return c.comparison(e)
	case *sqlparser.RangeCond:
		operand, err := c.compile(e.Left)
		if err != nil {
			return nil, err
		}
		from, to, err := c.pair(e.From, e.To)
		if err != nil {
			return nil, err
		}
		return &betweenNode{operand: operand, from: from, to: to, negate: e.Operator == sqlparser.NotBetweenStr}, nil
	case *sqlparser.IsExpr:
		operand, err := c.compile(e.Expr)
		if err != nil {
			return nil, err
		}
		switch e.Operator {
		case sqlparser.IsNullStr, sqlparser.IsNotNullStr:
			return &nullNode{operand: operand, negate: e.Operator == sqlparser.IsNotNullStr}, nil
		case sqlparser.IsTrueStr, sqlparser.IsNotFalseStr:
			return operand, nil
		case sqlparser.IsFalseStr, sqlparser.IsNotTrueStr:
			return &notNode{inner: operand}, nil
		}
		return nil, fmt.Errorf("unsupported %q", e.Operator)
	case *sqlparser.SQLVal:
		return literal(e)
	case *sqlparser.NullVal:
		return &litNode{v: nil}, nil
	case sqlparser.BoolVal:
		return &litNode{v: bool(e)}, nil
	case *sqlparser.ColName:
		return c.column(e.Name.String())
	case *sqlparser.UnaryExpr:
		inner, err := c.compile(e.Expr)
		if err != nil {
			return nil, err
		}
		switch e.Operator {
		case sqlparser.UPlusStr:
			return inner, nil
		case sqlparser.UMinusStr:
			return &arithNode{op: sqlparser.MinusStr, left: &litNode{v: 0.0}, right: inner}, nil
		case sqlparser.BangStr:
			return &notNode{inner: inner}, nil
		}
		return nil, fmt.Errorf("unsupported operator %q", e.Operator)
	case *sqlparser.BinaryExpr:
		switch e.Operator {
		case sqlparser.PlusStr, sqlparser.MinusStr, sqlparser.MultStr, sqlparser.DivStr, sqlparser.ModStr:
		default:
			return nil, fmt.Errorf("unsupported operator %q", e.Operator)
		}
		l, r, err := c.pair(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &arithNode{op: e.Operator, left: l, right: r}, nil
	}
	return nil, fmt.Errorf("unsupported expression %q", sqlparser.String(e))
}

func (c *filterCompiler) pair(a, b sqlparser.Expr) (node, node, error) {
	l, err := c.compile(a)
	if err != nil {
		return nil, nil, err
	}
	r, err := c.compile(b)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func (c *filterCompiler) comparison(e *sqlparser.ComparisonExpr) (node, error) {
	left, err := c.compile(e.Left)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		tuple, ok := e.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, fmt.Errorf("IN needs a value list, got %q", sqlparser.String(e.Right))
		}
		n := &inNode{operand: left, negate: e.Operator == sqlparser.NotInStr}
		for _, item := range tuple {
			v, err := c.compile(item)
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, v)
		}
		return n, nil
	}

	right, err := c.compile(e.Right)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case sqlparser.LikeStr, sqlparser.NotLikeStr:
		if e.Escape != nil {
			return nil, fmt.Errorf("LIKE ... ESCAPE is not supported")
		}
		return &likeNode{operand: left, pattern: right, negate: e.Operator == sqlparser.NotLikeStr}, nil
	case sqlparser.EqualStr, sqlparser.NotEqualStr, sqlparser.NullSafeEqualStr,
		sqlparser.LessThanStr, sqlparser.LessEqualStr, sqlparser.GreaterThanStr, sqlparser.GreaterEqualStr:
		return &cmpNode{op: e.Operator, left: left, right: right}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", e.Operator)
}

func (c *filterCompiler) column(name string) (node, error) {
	idx := -1
	if c.schema != nil {
		idx = c.schema.FieldIndex(name)
	}
	if idx < 0 {
		if strings.EqualFold(name, "FID") {
			return &fidNode{}, nil
		}
		return nil, fmt.Errorf("unknown column %q", name)
	}
	if !slices.Contains(c.cols, idx) {
		c.cols = append(c.cols, idx)
	}
	return &colNode{idx: idx}, nil
}

func literal(v *sqlparser.SQLVal) (node, error) {
	switch v.Type {
	case sqlparser.StrVal:
		return &litNode{v: string(v.Val)}, nil
	case sqlparser.IntVal, sqlparser.FloatVal:
		f, err := strconv.ParseFloat(string(v.Val), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.Val)
		}
		return &litNode{v: f}, nil
	}
	return nil, fmt.Errorf("unsupported literal %q", v.Val)
}

// node values are nil, float64, string or bool.
type node interface {
	eval(f *Feature) any
}

type litNode struct{ v any }

func (n *litNode) eval(*Feature) any { return n.v }

type colNode struct{ idx int }

func (n *colNode) eval(f *Feature) any {
	if n.idx >= len(f.Fields) {
		return nil
	}
	v := f.Fields[n.idx]
	if !v.Valid() {
		return nil
	}
	switch v.Kind() {
	case Integer, Integer64, Real:
		return v.Real()
	}
	return v.String()
}

type fidNode struct{}

func (fidNode) eval(f *Feature) any { return float64(f.FID) }

type logicNode struct {
	or          bool
	left, right node
}

func (n *logicNode) eval(f *Feature) any {
	l := truthy(n.left.eval(f))
	if n.or {
		return l || truthy(n.right.eval(f))
	}
	return l && truthy(n.right.eval(f))
}

type notNode struct{ inner node }

func (n *notNode) eval(f *Feature) any { return !truthy(n.inner.eval(f)) }

type nullNode struct {
	operand node
	negate  bool
}

func (n *nullNode) eval(f *Feature) any {
	return (n.operand.eval(f) == nil) != n.negate
}

type cmpNode struct {
	op          string
	left, right node
}

func (n *cmpNode) eval(f *Feature) any {
	l, r := n.left.eval(f), n.right.eval(f)
	if n.op == sqlparser.NullSafeEqualStr && (l == nil || r == nil) {
		return l == nil && r == nil
	}
	c, ok := compare(l, r)
	if !ok {
		return false
	}
	switch n.op {
	case sqlparser.EqualStr, sqlparser.NullSafeEqualStr:
		return c == 0
	case sqlparser.NotEqualStr:
		return c != 0
	case sqlparser.LessThanStr:
		return c < 0
	case sqlparser.LessEqualStr:
		return c <= 0
	case sqlparser.GreaterThanStr:
		return c > 0
	case sqlparser.GreaterEqualStr:
		return c >= 0
	}
	return false
}

type betweenNode struct {
	operand, from, to node
	negate            bool
}

func (n *betweenNode) eval(f *Feature) any {
	v := n.operand.eval(f)
	lo, ok1 := compare(v, n.from.eval(f))
	hi, ok2 := compare(v, n.to.eval(f))
	if !ok1 || !ok2 {
		return false
	}
	return (lo >= 0 && hi <= 0) != n.negate
}

// arithNode evaluates to null unless both operands are numbers.
type arithNode struct {
	op          string
	left, right node
}

func (n *arithNode) eval(f *Feature) any {
	a, ok1 := toNumber(n.left.eval(f))
	b, ok2 := toNumber(n.right.eval(f))
	if !ok1 || !ok2 {
		return nil
	}
	switch n.op {
	case sqlparser.PlusStr:
		return a + b
	case sqlparser.MinusStr:
		return a - b
	case sqlparser.MultStr:
		return a * b
	case sqlparser.DivStr:
		if b == 0 {
			return nil
		}
		return a / b
	case sqlparser.ModStr:
		if b == 0 {
			return nil
		}
		return math.Mod(a, b)
	}
	return nil
}

type inNode struct {
	operand node
	list    []node
	negate  bool
}

func (n *inNode) eval(f *Feature) any {
	v := n.operand.eval(f)
	if v == nil {
		return false
	}
	for _, item := range n.list {
		if c, ok := compare(v, item.eval(f)); ok && c == 0 {
			return !n.negate
		}
	}
	return n.negate
}

type likeNode struct {
	operand, pattern node
	negate           bool
}

func (n *likeNode) eval(f *Feature) any {
	v, p := n.operand.eval(f), n.pattern.eval(f)
	if v == nil || p == nil {
		return false
	}
	return likeMatch(strings.ToLower(toString(v)), strings.ToLower(toString(p))) != n.negate
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

// compare orders a and b numerically when both are numbers, or when one is
// a number and the other parses as one; otherwise as strings.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && !bNum {
		if f, err := strconv.ParseFloat(toString(b), 64); err == nil {
			bf, bNum = f, true
		}
	}
	if bNum && !aNum {
		if f, err := strconv.ParseFloat(toString(a), 64); err == nil {
			af, aNum = f, true
		}
	}
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	return strings.Compare(toString(a), toString(b)), true
}

// likeMatch implements SQL LIKE with % and _.
func likeMatch(s, pattern string) bool {
	sr, pr := []rune(s), []rune(pattern)
	var match func(i, j int) bool
	match = func(i, j int) bool {
		for j < len(pr) {
			switch pr[j] {
			case '%':
				for k := i; k <= len(sr); k++ {
					if match(k, j+1) {
						return true
					}
				}
				return false
			case '_':
				if i >= len(sr) {
					return false
				}
			default:
				if i >= len(sr) || sr[i] != pr[j] {
					return false
				}
			}
			i++
			j++
		}
		return i == len(sr)
	}
	return match(0, 0)
}
