// Package transform provides the pluggable transformations handles apply
// to content before it is sent.
package transform

import "io"

// Transformer converts a markup source into a result written to dst.
// Implementations must not close src or dst.
type Transformer interface {
	Transform(src io.Reader, dst io.Writer) error
}

// Func adapts an ordinary function to the Transformer interface.
type Func func(src io.Reader, dst io.Writer) error

// Transform calls f(src, dst).
func (f Func) Transform(src io.Reader, dst io.Writer) error {
	return f(src, dst)
}

// ValueTransformer maps a decoded structured value (as produced by
// encoding/json) to another value of the same shape.
type ValueTransformer interface {
	TransformValue(v any) (any, error)
}

// ValueFunc adapts an ordinary function to the ValueTransformer interface.
type ValueFunc func(v any) (any, error)

// TransformValue calls f(v).
func (f ValueFunc) TransformValue(v any) (any, error) {
	return f(v)
}
