package handle

import (
	"encoding/json"
	"fmt"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/transform"
)

// JSONHandle holds a JSON document either as raw bytes received from the
// wire or as a Go value set by the caller. Raw content is decoded lazily.
type JSONHandle struct {
	Base[[]byte, []byte]
	raw         []byte
	value       any
	hasValue    bool
	decoded     bool // value was decoded from raw
	transformed bool // content is already the transformer's output
	transformer transform.ValueTransformer
}

// NewJSON returns an empty JSON handle.
func NewJSON() *JSONHandle {
	h := &JSONHandle{}
	h.Init(h, format.JSON, Bytes, Bytes)
	return h
}

// NewJSONValue returns a JSON handle holding v.
func NewJSONValue(v any) *JSONHandle {
	h := NewJSON()
	h.Set(v)
	return h
}

// SetFormat accepts only JSON.
func (h *JSONHandle) SetFormat(f format.Format) error {
	if f != format.JSON {
		return fmt.Errorf("%w: json handle supports the %s format only, got %s",
			docerrors.ErrInvalidArgument, format.JSON, f)
	}
	return nil
}

// SetTransformer configures a transform applied to the decoded document
// on send. Nil disables it.
func (h *JSONHandle) SetTransformer(t transform.ValueTransformer) {
	h.transformer = t
	h.transformed = false
}

// Set replaces the content with v, which is encoded on send. A nil v
// clears the handle.
func (h *JSONHandle) Set(v any) {
	h.raw = nil
	h.decoded = false
	h.transformed = false
	if v == nil {
		h.value = nil
		h.hasValue = false
		return
	}
	h.value = v
	h.hasValue = true
}

// Raw returns the raw JSON bytes, or nil when the content is a Go value
// that has not been encoded yet.
func (h *JSONHandle) Raw() []byte { return h.raw }

// Get returns the document decoded into encoding/json's generic shape.
func (h *JSONHandle) Get() (any, error) {
	if h.hasValue {
		return h.value, nil
	}
	if h.raw == nil {
		return nil, fmt.Errorf("%w: json handle has no content", docerrors.ErrInvalidState)
	}
	var v any
	if err := json.Unmarshal(h.raw, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	h.value = v
	h.hasValue = true
	h.decoded = true
	return v, nil
}

// Decode unmarshals the document into v.
func (h *JSONHandle) Decode(v any) error {
	data, err := h.encoded()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// HasContent reports whether content is set.
func (h *JSONHandle) HasContent() bool { return h.raw != nil || h.hasValue }

// ReceiveContent stores raw JSON. An empty slice clears the handle.
func (h *JSONHandle) ReceiveContent(data []byte) {
	h.value = nil
	h.hasValue = false
	h.decoded = false
	h.transformed = false
	if len(data) == 0 {
		h.raw = nil
		return
	}
	h.raw = data
}

// SendContent returns the encoded document, transformed if a transformer
// is configured. Content produced by ToBuffer is not transformed again.
func (h *JSONHandle) SendContent() ([]byte, error) {
	if !h.HasContent() {
		return nil, noContent(h)
	}
	if h.transformer == nil || h.transformed {
		return h.encoded()
	}

	v, err := h.Get()
	if err != nil {
		return nil, docerrors.NewIOError("transform", err)
	}
	if !h.decoded {
		// Normalize caller values to the generic shape transformers expect.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, docerrors.NewIOError("transform", err)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, docerrors.NewIOError("transform", err)
		}
		v = generic
	}
	out, err := h.transformer.TransformValue(v)
	if err != nil {
		return nil, docerrors.NewIOError("transform", err)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, docerrors.NewIOError("transform", err)
	}
	return data, nil
}

func (h *JSONHandle) encoded() ([]byte, error) {
	if h.raw != nil {
		return h.raw, nil
	}
	if !h.hasValue {
		return nil, noContent(h)
	}
	data, err := json.Marshal(h.value)
	if err != nil {
		return nil, docerrors.NewIOError("encode", err)
	}
	return data, nil
}

func (h *JSONHandle) markTransformed() { h.transformed = true }

func (*JSONHandle) jsonRead()  {}
func (*JSONHandle) jsonWrite() {}
