// Package format defines the document format tags attached to content.
package format

import (
	"fmt"
	"strings"

	docerrors "github.com/gezibash/docio/pkg/errors"
)

// Format describes a document's media structure, independent of the
// in-memory representation that carries it.
type Format int

const (
	Unknown Format = iota
	XML
	JSON
	Text
	Binary
)

var names = [...]string{
	Unknown: "unknown",
	XML:     "xml",
	JSON:    "json",
	Text:    "text",
	Binary:  "binary",
}

func (f Format) String() string {
	if f < Unknown || f > Binary {
		return fmt.Sprintf("format(%d)", int(f))
	}
	return names[f]
}

// Valid reports whether f is one of the declared formats.
func (f Format) Valid() bool {
	return f >= Unknown && f <= Binary
}

// Parse returns the format named by s (case-insensitive). The empty string
// parses as Unknown.
func Parse(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Unknown, nil
	}
	for f, name := range names {
		if name == s {
			return Format(f), nil
		}
	}
	return Unknown, fmt.Errorf("%w: unknown format %q", docerrors.ErrInvalidArgument, s)
}

// DefaultMimetype returns the mimetype conventionally used for f.
func (f Format) DefaultMimetype() string {
	switch f {
	case XML:
		return "application/xml"
	case JSON:
		return "application/json"
	case Text:
		return "text/plain"
	case Binary:
		return "application/octet-stream"
	default:
		return ""
	}
}

// FromMimetype guesses the format from a mimetype. Parameters such as
// charset are ignored.
func FromMimetype(mimetype string) Format {
	mt := strings.ToLower(strings.TrimSpace(mimetype))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == "":
		return Unknown
	case mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml"):
		return XML
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return JSON
	case strings.HasPrefix(mt, "text/"):
		return Text
	case mt == "application/octet-stream" || strings.HasPrefix(mt, "image/") ||
		strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/"):
		return Binary
	default:
		return Unknown
	}
}
