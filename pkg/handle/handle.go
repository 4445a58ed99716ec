// Package handle adapts the in-memory representations calling code works
// with to the opaque byte stream a document store transport exchanges.
//
// A handle declares the representation it wants incoming content in
// (ReceiveAs) and the representation its outgoing content takes (SendAs).
// Transports that know the concrete handle type use the generic Receiver
// and Sender views; transports that only hold a ReadHandle or WriteHandle
// go through Receive and Open, which dispatch on the declared
// representation.
package handle

import (
	"fmt"

	"github.com/gezibash/docio/pkg/format"
)

// Representation names an in-memory content shape.
type Representation int

const (
	// Bytes is a []byte.
	Bytes Representation = iota + 1
	// Stream is an io.Reader.
	Stream
	// Text is a string.
	Text
	// Writer is an io.WriterTo. It is only valid as a send representation.
	Writer
)

func (r Representation) String() string {
	switch r {
	case Bytes:
		return "bytes"
	case Stream:
		return "stream"
	case Text:
		return "text"
	case Writer:
		return "writer"
	default:
		return fmt.Sprintf("representation(%d)", int(r))
	}
}

// Handle is the state every content handle carries.
type Handle interface {
	Format() format.Format
	SetFormat(f format.Format) error
	Mimetype() string
	SetMimetype(mt string)
}

// Receiver accepts decoded content of type R.
//
// ReceiveContent with a nil or empty value clears the handle. Any other
// value replaces the current content.
type Receiver[R any] interface {
	ReceiveAs() Representation
	ReceiveContent(v R)
}

// Sender produces content of type S ready to be written to the wire.
// SendContent fails with errors.ErrInvalidState when no content is set.
type Sender[S any] interface {
	SendAs() Representation
	SendContent() (S, error)
}

// ReadHandle is a handle content can be read into.
type ReadHandle interface {
	Handle
	ReceiveAs() Representation
}

// WriteHandle is a handle whose content can be written out.
type WriteHandle interface {
	Handle
	SendAs() Representation
}

// Bufferable handles can materialize their content as bytes and restore it
// from bytes, which makes one-shot content replayable.
type Bufferable interface {
	ToBuffer() ([]byte, error)
	FromBuffer(b []byte) error
}

// Format capability markers. A concrete handle implements the markers for
// the formats its representation can carry, which lets document managers
// restrict the handles they accept at compile time.
type (
	XMLReadHandle interface {
		ReadHandle
		xmlRead()
	}
	XMLWriteHandle interface {
		WriteHandle
		xmlWrite()
	}
	JSONReadHandle interface {
		ReadHandle
		jsonRead()
	}
	JSONWriteHandle interface {
		WriteHandle
		jsonWrite()
	}
	TextReadHandle interface {
		ReadHandle
		textRead()
	}
	TextWriteHandle interface {
		WriteHandle
		textWrite()
	}
	BinaryReadHandle interface {
		ReadHandle
		binaryRead()
	}
	BinaryWriteHandle interface {
		WriteHandle
		binaryWrite()
	}
)
