package handle

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	docerrors "github.com/gezibash/docio/pkg/errors"
)

// Receive decodes body into h's receive representation and hands it to h.
//
// For Bytes and Text the body is read fully and closed if it is an
// io.Closer. For Stream the body itself is handed over and the handle
// becomes responsible for closing it. A nil body clears the handle.
func Receive(h ReadHandle, body io.Reader) error {
	rep := h.ReceiveAs()
	switch rep {
	case Bytes:
		r, ok := h.(Receiver[[]byte])
		if !ok {
			return mismatch(h, rep)
		}
		data, err := drain(body)
		if err != nil {
			return err
		}
		r.ReceiveContent(data)
		return nil

	case Text:
		r, ok := h.(Receiver[string])
		if !ok {
			return mismatch(h, rep)
		}
		data, err := drain(body)
		if err != nil {
			return err
		}
		r.ReceiveContent(string(data))
		return nil

	case Stream:
		r, ok := h.(Receiver[io.Reader])
		if !ok {
			return mismatch(h, rep)
		}
		r.ReceiveContent(body)
		return nil

	default:
		return fmt.Errorf("%w: %s is not a receive representation", docerrors.ErrInvalidArgument, rep)
	}
}

// Open returns the wire bytes of h's sendable content. The caller must
// close the returned reader. Writer content is produced on a separate
// goroutine as the reader is consumed.
func Open(h WriteHandle) (io.ReadCloser, error) {
	rep := h.SendAs()
	switch rep {
	case Bytes:
		s, ok := h.(Sender[[]byte])
		if !ok {
			return nil, mismatch(h, rep)
		}
		data, err := s.SendContent()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil

	case Text:
		s, ok := h.(Sender[string])
		if !ok {
			return nil, mismatch(h, rep)
		}
		text, err := s.SendContent()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(strings.NewReader(text)), nil

	case Stream:
		s, ok := h.(Sender[io.Reader])
		if !ok {
			return nil, mismatch(h, rep)
		}
		r, err := s.SendContent()
		if err != nil {
			return nil, err
		}
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil

	case Writer:
		s, ok := h.(Sender[io.WriterTo])
		if !ok {
			return nil, mismatch(h, rep)
		}
		wt, err := s.SendContent()
		if err != nil {
			return nil, err
		}
		pr, pw := io.Pipe()
		go func() {
			_, err := wt.WriteTo(pw)
			pw.CloseWithError(err)
		}()
		return pr, nil

	default:
		return nil, fmt.Errorf("%w: unknown send representation %s", docerrors.ErrInvalidArgument, rep)
	}
}

func drain(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if c, ok := body.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, docerrors.NewIOError("receive", err)
	}
	return data, nil
}

func mismatch(h any, rep Representation) error {
	return fmt.Errorf("%w: %T declares %s content but does not carry it", docerrors.ErrInvalidArgument, h, rep)
}
