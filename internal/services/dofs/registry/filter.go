package registry

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Model attributes a filter can reference.
const (
	FieldName       = "name"
	FieldHead       = "head"
	FieldProjection = "projection"
)

// Head values.
const (
	HeadSigma   = "sigma"
	HeadVectors = "vectors"
)

// Attributes are the filterable properties of a loaded model.
type Attributes struct {
	Name       string
	Head       string
	Projection string
}

func (a Attributes) field(name string) (string, bool) {
	switch name {
	case FieldName:
		return a.Name, true
	case FieldHead:
		return a.Head, true
	case FieldProjection:
		return a.Projection, true
	default:
		return "", false
	}
}

// AttributesOf returns the filterable properties of h.
func AttributesOf(h *model.Handle) Attributes {
	head := HeadVectors
	if h.UsesSigma() {
		head = HeadSigma
	}
	return Attributes{Name: h.Name(), Head: head, Projection: h.Projection().String()}
}

// Filter is a parsed AIP-160 model filter. The zero Filter matches every
// model.
type Filter struct {
	expr *expr.Expr
}

// FilterDeclarations returns the identifiers a model filter may use.
func FilterDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent(FieldName, filtering.TypeString),
		filtering.DeclareIdent(FieldHead, filtering.TypeString),
		filtering.DeclareIdent(FieldProjection, filtering.TypeString),
	)
}

// ParseFilter parses an AIP-160 filter such as
// `head = "sigma" AND projection != "image"`. An empty string matches
// every model.
func ParseFilter(filterStr string) (Filter, error) {
	if strings.TrimSpace(filterStr) == "" {
		return Filter{}, nil
	}
	decls, err := FilterDeclarations()
	if err != nil {
		return Filter{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return Filter{}, apperrors.Wrap(apperrors.CodeInvalidInput, "parse model filter", err)
	}
	if parsed.CheckedExpr == nil {
		return Filter{}, nil
	}
	f := Filter{expr: parsed.CheckedExpr.GetExpr()}
	// Evaluate once so unsupported operators fail at parse time.
	if _, err := f.Match(Attributes{}); err != nil {
		return Filter{}, apperrors.Wrap(apperrors.CodeInvalidInput, "parse model filter", err)
	}
	return f, nil
}

// Match reports whether attrs satisfy the filter.
func (f Filter) Match(attrs Attributes) (bool, error) {
	if f.expr == nil {
		return true, nil
	}
	return evalBool(f.expr, attrs)
}

// List returns the sorted model names that match f. A model that failed to
// load exposes only its name, so head and projection terms never match it.
func (r *Registry) List(f Filter) ([]string, error) {
	snap := r.current.Load()
	var names []string
	for _, name := range snap.Names() {
		attrs := Attributes{Name: name}
		if h, ok := snap.Models[name]; ok {
			attrs = AttributesOf(h)
		}
		ok, err := f.Match(attrs)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func evalBool(e *expr.Expr, attrs Attributes) (bool, error) {
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return false, fmt.Errorf("unsupported expression type: %T", e.GetExprKind())
	}
	args := call.CallExpr.GetArgs()
	switch fn := call.CallExpr.GetFunction(); fn {
	case "_&&_", filtering.FunctionAnd:
		return evalLogical(args, attrs, true)
	case "_||_", filtering.FunctionOr:
		return evalLogical(args, attrs, false)
	case filtering.FunctionNot:
		if len(args) != 1 {
			return false, fmt.Errorf("NOT requires 1 argument")
		}
		v, err := evalBool(args[0], attrs)
		return !v, err
	case "_==_", filtering.FunctionEquals,
		"_!=_", filtering.FunctionNotEquals,
		"_<_", filtering.FunctionLessThan,
		"_<=_", filtering.FunctionLessEquals,
		"_>_", filtering.FunctionGreaterThan,
		"_>=_", filtering.FunctionGreaterEquals:
		return evalComparison(fn, args, attrs)
	case filtering.FunctionHas:
		if len(args) != 2 {
			return false, fmt.Errorf("has requires 2 arguments")
		}
		left, right, err := operands(args, attrs)
		if err != nil {
			return false, err
		}
		return strings.Contains(left, right), nil
	default:
		return false, fmt.Errorf("unsupported function: %s", fn)
	}
}

func evalLogical(args []*expr.Expr, attrs Attributes, and bool) (bool, error) {
	if len(args) < 2 {
		return false, fmt.Errorf("logical operator requires 2 arguments")
	}
	for _, arg := range args {
		v, err := evalBool(arg, attrs)
		if err != nil {
			return false, err
		}
		if and && !v {
			return false, nil
		}
		if !and && v {
			return true, nil
		}
	}
	return and, nil
}

func evalComparison(fn string, args []*expr.Expr, attrs Attributes) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("comparison requires 2 arguments")
	}
	left, right, err := operands(args, attrs)
	if err != nil {
		return false, err
	}
	cmp := strings.Compare(left, right)
	switch fn {
	case "_==_", filtering.FunctionEquals:
		return cmp == 0, nil
	case "_!=_", filtering.FunctionNotEquals:
		return cmp != 0, nil
	case "_<_", filtering.FunctionLessThan:
		return cmp < 0, nil
	case "_<=_", filtering.FunctionLessEquals:
		return cmp <= 0, nil
	case "_>_", filtering.FunctionGreaterThan:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

// operands resolves an identifier on the left and a string constant on the
// right.
func operands(args []*expr.Expr, attrs Attributes) (string, string, error) {
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return "", "", fmt.Errorf("expected identifier, got %T", args[0].GetExprKind())
	}
	left, ok := attrs.field(ident.IdentExpr.GetName())
	if !ok {
		return "", "", fmt.Errorf("unknown field: %s", ident.IdentExpr.GetName())
	}
	constant, ok := args[1].GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return "", "", fmt.Errorf("expected constant, got %T", args[1].GetExprKind())
	}
	value, ok := constant.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return "", "", fmt.Errorf("unsupported constant type: %T", constant.ConstExpr.GetConstantKind())
	}
	return left, value.StringValue, nil
}
