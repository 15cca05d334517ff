// Package filter translates AIP-160 filter expressions into SQL conditions
// for list endpoints.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// FieldType is the filterable type of a field.
type FieldType int

const (
	String FieldType = iota
	Int
	Bool
	Timestamp
	// Money fields are filtered in whole currency units and stored in minor units.
	Money
)

// Field maps a filter identifier onto a SQL column.
type Field struct {
	Column string
	Type   FieldType
}

// Schema lists the identifiers a resource accepts in filter expressions.
type Schema map[string]Field

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE fragment, e.g. "status = ?".
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// Empty reports whether the condition has no clause.
func (c SQLCondition) Empty() bool {
	return strings.TrimSpace(c.Clause) == ""
}

// Fields returns the declared identifiers in sorted order.
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Schema) declarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("true", filtering.TypeBool),
		filtering.DeclareIdent("false", filtering.TypeBool),
	}
	for _, name := range s.Fields() {
		var declType = filtering.TypeString
		switch s[name].Type {
		case Int, Money:
			declType = filtering.TypeInt
		case Bool:
			declType = filtering.TypeBool
		case Timestamp:
			declType = filtering.TypeTimestamp
		}
		opts = append(opts, filtering.DeclareIdent(name, declType))
	}
	return filtering.NewDeclarations(opts...)
}

// Parse parses an AIP-160 filter against the schema. An empty filter
// returns an empty condition.
func (s Schema) Parse(filterStr string) (SQLCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return SQLCondition{}, nil
	}
	decls, err := s.declarations()
	if err != nil {
		return SQLCondition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("parse filter: %w", err)
	}
	return s.translateExpr(parsed.CheckedExpr.GetExpr())
}

func (s Schema) translateExpr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}
	if ident, ok := e.ExprKind.(*expr.Expr_IdentExpr); ok {
		// A bare bool field such as `is_active` means "is true".
		field, ok := s[ident.IdentExpr.GetName()]
		if !ok || field.Type != Bool {
			return SQLCondition{}, fmt.Errorf("expected bool field, got identifier %s", ident.IdentExpr.GetName())
		}
		return SQLCondition{Clause: field.Column + " = ?", Params: []any{1}}, nil
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}
	args := call.CallExpr.Args
	switch call.CallExpr.Function {
	case "_&&_", "AND":
		return s.join(args, "AND")
	case "_||_", "OR":
		return s.join(args, "OR")
	case "NOT", "_!_":
		if len(args) != 1 {
			return SQLCondition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := s.translateExpr(args[0])
		if err != nil {
			return SQLCondition{}, err
		}
		return SQLCondition{Clause: "NOT (" + inner.Clause + ")", Params: inner.Params}, nil
	case "_==_", "=":
		return s.compare(args, "=")
	case "_!=_", "!=":
		return s.compare(args, "!=")
	case "_<_", "<":
		return s.compare(args, "<")
	case "_<=_", "<=":
		return s.compare(args, "<=")
	case "_>_", ">":
		return s.compare(args, ">")
	case "_>=_", ">=":
		return s.compare(args, ">=")
	default:
		return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.CallExpr.Function)
	}
}

func (s Schema) join(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s requires 2 arguments", op)
	}
	left, err := s.translateExpr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	right, err := s.translateExpr(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func (s Schema) compare(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return SQLCondition{}, fmt.Errorf("expected identifier on the left of %s", op)
	}
	field, ok := s[ident.IdentExpr.GetName()]
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", ident.IdentExpr.GetName())
	}
	value, err := extractValue(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	switch field.Type {
	case Money:
		if v, ok := value.(int64); ok {
			value = v * 100
		}
	case Bool:
		if v, ok := value.(bool); ok {
			if v {
				value = 1
			} else {
				value = 0
			}
		}
	case String:
		if v, ok := value.(string); ok && op == "=" && strings.HasSuffix(v, "*") {
			return SQLCondition{Clause: field.Column + " LIKE ?", Params: []any{strings.TrimSuffix(v, "*") + "%"}}, nil
		}
	}
	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", field.Column, op),
		Params: []any{value},
	}, nil
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		switch c := kind.ConstExpr.GetConstantKind().(type) {
		case *expr.Constant_StringValue:
			return c.StringValue, nil
		case *expr.Constant_Int64Value:
			return c.Int64Value, nil
		case *expr.Constant_Uint64Value:
			return int64(c.Uint64Value), nil
		case *expr.Constant_DoubleValue:
			return c.DoubleValue, nil
		case *expr.Constant_BoolValue:
			return c.BoolValue, nil
		default:
			return nil, fmt.Errorf("unsupported constant type: %T", c)
		}
	case *expr.Expr_IdentExpr:
		switch kind.IdentExpr.GetName() {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("expected constant, got identifier %s", kind.IdentExpr.GetName())
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractTimestamp(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

// extractTimestamp returns unix milliseconds, matching how rows store time.
func extractTimestamp(e *expr.Expr) (int64, error) {
	constExpr, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a constant string")
	}
	raw, ok := constExpr.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, raw.StringValue)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", raw.StringValue)
	}
	return t.UTC().UnixMilli(), nil
}
