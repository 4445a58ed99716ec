package handle

import (
	"fmt"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
)

// StringHandle holds character content. It carries XML, JSON and text
// documents but not binary ones.
type StringHandle struct {
	Base[string, string]
	content string
	set     bool
}

// NewString returns a handle holding content, with format Text.
func NewString(content string) *StringHandle {
	h := &StringHandle{}
	h.Init(h, format.Text, Text, Text)
	h.ReceiveContent(content)
	return h
}

// SetFormat rejects Binary.
func (h *StringHandle) SetFormat(f format.Format) error {
	if f == format.Binary {
		return fmt.Errorf("%w: string handle does not support the %s format", docerrors.ErrInvalidArgument, f)
	}
	return h.Base.SetFormat(f)
}

// Get returns the content, or "".
func (h *StringHandle) Get() string { return h.content }

// Set replaces the content.
func (h *StringHandle) Set(content string) { h.ReceiveContent(content) }

// HasContent reports whether content is set.
func (h *StringHandle) HasContent() bool { return h.set }

// ReceiveContent stores content. The empty string clears the handle.
func (h *StringHandle) ReceiveContent(content string) {
	h.content = content
	h.set = content != ""
}

// SendContent returns the content.
func (h *StringHandle) SendContent() (string, error) {
	if !h.set {
		return "", noContent(h)
	}
	return h.content, nil
}

func (*StringHandle) xmlRead()   {}
func (*StringHandle) xmlWrite()  {}
func (*StringHandle) jsonRead()  {}
func (*StringHandle) jsonWrite() {}
func (*StringHandle) textRead()  {}
func (*StringHandle) textWrite() {}
