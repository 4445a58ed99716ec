// Package cel provides a ValueTransformer backed by a CEL expression.
//
// The expression sees the decoded document as the dynamic variable doc and
// its result becomes the new document. JSON numbers decode as doubles, so
// arithmetic against literals should use double literals (doc.n + 1.0).
package cel

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrInvalidExpression = errors.New("invalid CEL expression")
	ErrEvaluationFailed  = errors.New("CEL evaluation failed")
)

// DocVar is the name the expression uses to refer to the input document.
const DocVar = "doc"

var valueType = reflect.TypeOf(&structpb.Value{})

// Program is a compiled document expression.
type Program struct {
	expr    string
	program cel.Program
}

// Compile parses and checks expr against an environment declaring doc.
func Compile(expr string) (*Program, error) {
	env, err := cel.NewEnv(cel.Variable(DocVar, cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return &Program{expr: expr, program: prg}, nil
}

// String returns the source expression.
func (p *Program) String() string { return p.expr }

// TransformValue evaluates the expression with doc bound to v. The result
// is returned in encoding/json shape: map[string]any, []any, float64,
// string, bool or nil.
func (p *Program) TransformValue(v any) (any, error) {
	out, _, err := p.program.Eval(map[string]any{DocVar: v})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	native, err := out.ConvertToNative(valueType)
	if err != nil {
		return nil, fmt.Errorf("%w: result %s is not a JSON value: %v", ErrEvaluationFailed, out.Type(), err)
	}
	pv, ok := native.(*structpb.Value)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result %T", ErrEvaluationFailed, native)
	}
	return pv.AsInterface(), nil
}
