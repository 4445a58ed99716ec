package handle

import (
	"bufio"
	"fmt"
	"io"

	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/logging"
	"github.com/gezibash/docio/pkg/transform"
)

// SourceHandle holds XML markup as a source stream and sends it through a
// Transformer. Without a transformer it falls back to the identity
// transform, which normalizes the markup to UTF-8.
//
// The source is consumed by the first send; it is closed and the handle
// cleared once the transform finishes, whether or not it succeeded.
type SourceHandle struct {
	Base[io.Reader, io.WriterTo]
	source      io.Reader
	transformer transform.Transformer
	transformed bool
	logger      *logging.Logger
}

// NewSource returns an XML handle reading markup from src.
func NewSource(src io.Reader) *SourceHandle {
	h := &SourceHandle{logger: logging.New(nil).WithComponent("source-handle")}
	h.Init(h, format.XML, Stream, Writer)
	h.ReceiveContent(src)
	return h
}

// SetFormat accepts only XML.
func (h *SourceHandle) SetFormat(f format.Format) error {
	if f != format.XML {
		return fmt.Errorf("%w: source handle supports the %s format only, got %s",
			docerrors.ErrInvalidArgument, format.XML, f)
	}
	return nil
}

// Transformer returns the configured transformer, or nil.
func (h *SourceHandle) Transformer() transform.Transformer { return h.transformer }

// SetTransformer configures the transform applied on send. Nil selects the
// identity transform.
func (h *SourceHandle) SetTransformer(t transform.Transformer) {
	h.transformer = t
	h.transformed = false
}

// SetLogger replaces the logger used for transform diagnostics.
func (h *SourceHandle) SetLogger(l *logging.Logger) {
	if l == nil {
		l = logging.New(nil)
	}
	h.logger = l.WithComponent("source-handle")
}

// Get returns the markup source, or nil.
func (h *SourceHandle) Get() io.Reader { return h.source }

// Set replaces the markup source.
func (h *SourceHandle) Set(src io.Reader) { h.ReceiveContent(src) }

// HasContent reports whether a source is set.
func (h *SourceHandle) HasContent() bool { return h.source != nil }

// ReceiveContent wraps src as the markup source without reading it. A nil
// src clears the handle.
func (h *SourceHandle) ReceiveContent(src io.Reader) {
	h.source = src
	h.transformed = false
}

func (h *SourceHandle) markTransformed() { h.transformed = true }

// SendContent returns the handle itself; writing it runs the transform.
func (h *SourceHandle) SendContent() (io.WriterTo, error) {
	if h.source == nil {
		return nil, noContent(h)
	}
	return h, nil
}

// Transform applies the transformer to the source and writes the result
// to dst. Errors returned by dst are passed through unchanged; any other
// failure is reported as *errors.IOError.
func (h *SourceHandle) Transform(dst io.Writer) error {
	if h.source == nil {
		return fmt.Errorf("%w: no markup source to transform", docerrors.ErrInvalidState)
	}

	src := h.source
	h.source = nil
	defer func() {
		if c, ok := src.(io.Closer); ok {
			_ = c.Close()
		}
	}()

	t := h.transformer
	switch {
	case h.transformed:
		// Buffered output of an earlier transform.
		h.transformed = false
		t = passthrough
	case t == nil:
		h.logger.Warn("no transformer, using identity transform")
		t = transform.Identity()
	}

	sink := &sinkWriter{w: dst}
	if err := t.Transform(src, sink); err != nil {
		if sink.err != nil {
			return sink.err
		}
		h.logger.WithError(err).Error("transform failed")
		return docerrors.NewIOError("transform", err)
	}
	return nil
}

// WriteTo streams the transformed markup to w as UTF-8.
func (h *SourceHandle) WriteTo(w io.Writer) (int64, error) {
	counter := &sinkWriter{w: w}
	bw := bufio.NewWriter(counter)
	if err := h.Transform(bw); err != nil {
		if counter.err != nil {
			return counter.n, counter.err
		}
		return counter.n, err
	}
	if err := bw.Flush(); err != nil {
		return counter.n, err
	}
	return counter.n, nil
}

var passthrough = transform.Func(func(src io.Reader, dst io.Writer) error {
	_, err := io.Copy(dst, src)
	return err
})

func (*SourceHandle) xmlRead()  {}
func (*SourceHandle) xmlWrite() {}

// sinkWriter remembers the first error its destination returned so sink
// failures can be told apart from transform failures.
type sinkWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.n += int64(n)
	if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}
