package handle

import (
	"fmt"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
)

// BytesHandle holds content as a byte slice. It accepts any format.
type BytesHandle struct {
	Base[[]byte, []byte]
	content []byte
}

// NewBytes returns a handle holding content, with format Unknown.
func NewBytes(content []byte) *BytesHandle {
	h := &BytesHandle{}
	h.Init(h, format.Unknown, Bytes, Bytes)
	h.ReceiveContent(content)
	return h
}

// Get returns the content, or nil.
func (h *BytesHandle) Get() []byte { return h.content }

// Set replaces the content.
func (h *BytesHandle) Set(content []byte) { h.ReceiveContent(content) }

// HasContent reports whether content is set.
func (h *BytesHandle) HasContent() bool { return h.content != nil }

// ReceiveContent stores content. An empty slice clears the handle.
func (h *BytesHandle) ReceiveContent(content []byte) {
	if len(content) == 0 {
		h.content = nil
		return
	}
	h.content = content
}

// SendContent returns the content.
func (h *BytesHandle) SendContent() ([]byte, error) {
	if h.content == nil {
		return nil, noContent(h)
	}
	return h.content, nil
}

func (*BytesHandle) xmlRead()     {}
func (*BytesHandle) xmlWrite()    {}
func (*BytesHandle) jsonRead()    {}
func (*BytesHandle) jsonWrite()   {}
func (*BytesHandle) textRead()    {}
func (*BytesHandle) textWrite()   {}
func (*BytesHandle) binaryRead()  {}
func (*BytesHandle) binaryWrite() {}

func noContent(h any) error {
	return fmt.Errorf("%w: %T has no content to send", docerrors.ErrInvalidState, h)
}
