package handle

import (
	"io"

	"github.com/gezibash/docio/pkg/format"
)

// StreamHandle holds content as a one-shot reader. Use ToBuffer to make
// the content replayable.
type StreamHandle struct {
	Base[io.Reader, io.Reader]
	content io.Reader
}

// NewStream returns a handle holding r, with format Unknown.
func NewStream(r io.Reader) *StreamHandle {
	h := &StreamHandle{}
	h.Init(h, format.Unknown, Stream, Stream)
	h.ReceiveContent(r)
	return h
}

// Get returns the reader, or nil.
func (h *StreamHandle) Get() io.Reader { return h.content }

// Set replaces the content.
func (h *StreamHandle) Set(r io.Reader) { h.ReceiveContent(r) }

// HasContent reports whether content is set.
func (h *StreamHandle) HasContent() bool { return h.content != nil }

// ReceiveContent stores r without reading it. A nil reader clears the
// handle. The previous reader, if any, is not closed.
func (h *StreamHandle) ReceiveContent(r io.Reader) { h.content = r }

// SendContent returns the reader. Whoever consumes it owns closing it.
func (h *StreamHandle) SendContent() (io.Reader, error) {
	if h.content == nil {
		return nil, noContent(h)
	}
	return h.content, nil
}

// Close closes the reader if it is an io.Closer and clears the handle.
func (h *StreamHandle) Close() error {
	r := h.content
	h.content = nil
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (*StreamHandle) xmlRead()     {}
func (*StreamHandle) xmlWrite()    {}
func (*StreamHandle) jsonRead()    {}
func (*StreamHandle) jsonWrite()   {}
func (*StreamHandle) textRead()    {}
func (*StreamHandle) textWrite()   {}
func (*StreamHandle) binaryRead()  {}
func (*StreamHandle) binaryWrite() {}
