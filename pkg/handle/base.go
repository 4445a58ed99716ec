package handle

import (
	"bytes"
	"fmt"
	"io"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
)

// Content is what a concrete handle hands to Base so the shared buffering
// logic can reach its content.
type Content[R any] interface {
	ReadHandle
	WriteHandle
	Receiver[R]
	HasContent() bool
}

// Base carries the format, mimetype and buffering logic shared by every
// handle. Concrete handles embed it and call Init from their constructor.
type Base[R, S any] struct {
	format   format.Format
	mimetype string
	recvAs   Representation
	sendAs   Representation
	self     Content[R]
}

// Init binds b to the concrete handle that embeds it.
func (b *Base[R, S]) Init(self Content[R], f format.Format, recvAs, sendAs Representation) {
	b.self = self
	b.format = f
	b.recvAs = recvAs
	b.sendAs = sendAs
}

// Format returns the document format.
func (b *Base[R, S]) Format() format.Format { return b.format }

// SetFormat stores f. Handles restricted to a subset of formats override it.
func (b *Base[R, S]) SetFormat(f format.Format) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %s", docerrors.ErrInvalidArgument, f)
	}
	b.format = f
	return nil
}

// Mimetype returns the mimetype, or "" when none was set.
func (b *Base[R, S]) Mimetype() string { return b.mimetype }

// SetMimetype sets the mimetype.
func (b *Base[R, S]) SetMimetype(mt string) { b.mimetype = mt }

// ReceiveAs returns the representation incoming content is decoded into.
func (b *Base[R, S]) ReceiveAs() Representation { return b.recvAs }

// SendAs returns the representation outgoing content takes.
func (b *Base[R, S]) SendAs() Representation { return b.sendAs }

// ToBuffer serializes the content through the same path a transport uses
// and re-absorbs the result, so the handle afterwards holds exactly what
// was returned. It returns nil when no content is set.
//
// The returned slice may share memory with the handle's content.
func (b *Base[R, S]) ToBuffer() ([]byte, error) {
	if b.self == nil || !b.self.HasContent() {
		return nil, nil
	}

	rc, err := Open(b.self)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, docerrors.NewIOError("buffer", closeErr)
	}

	if err := b.FromBuffer(data); err != nil {
		return nil, err
	}
	if m, ok := b.self.(transformedMarker); ok && len(data) > 0 {
		m.markTransformed()
	}
	return data, nil
}

// transformedMarker is implemented by handles that transform on send. The
// content ToBuffer re-absorbs is already transformed and is sent as is.
type transformedMarker interface {
	markTransformed()
}

// FromBuffer replaces the content with data decoded as the receive
// representation. Nil or empty data clears the content.
func (b *Base[R, S]) FromBuffer(data []byte) error {
	if b.self == nil {
		return fmt.Errorf("%w: handle not initialized", docerrors.ErrInvalidState)
	}
	if len(data) == 0 {
		var zero R
		b.self.ReceiveContent(zero)
		return nil
	}
	return Receive(b.self, bytes.NewReader(data))
}
