package transform

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

// Identity returns a Transformer that re-serializes markup unchanged in
// structure. Input in any charset known to x/net/html/charset is emitted as
// UTF-8 and the XML declaration is rewritten accordingly. Empty elements are
// written as start/end pairs, so the output of Identity is a fixed point of
// Identity.
func Identity() Transformer {
	return identity{}
}

type identity struct{}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;",
	)
	encodingDecl = regexp.MustCompile(`encoding\s*=\s*("[^"]*"|'[^']*')`)
	entityDecl   = regexp.MustCompile(`<!ENTITY\s+([^\s%"'>]+)\s+(?:"([^"]*)"|'([^']*)')\s*>`)
)

func (identity) Transform(src io.Reader, dst io.Writer) error {
	dec := xml.NewDecoder(src)
	dec.CharsetReader = charset.NewReaderLabel

	w := bufio.NewWriter(dst)
	var open []xml.Name

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("identity transform: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			open = append(open, t.Name)
			writeStart(w, t)
		case xml.EndElement:
			if len(open) == 0 || open[len(open)-1] != t.Name {
				return fmt.Errorf("identity transform: unexpected end element </%s>", qname(t.Name))
			}
			open = open[:len(open)-1]
			_, _ = w.WriteString("</" + qname(t.Name) + ">")
		case xml.CharData:
			_, _ = textEscaper.WriteString(w, string(t))
		case xml.Comment:
			_, _ = w.WriteString("<!--" + string(t) + "-->")
		case xml.ProcInst:
			inst := strings.TrimSpace(string(t.Inst))
			if t.Target == "xml" {
				inst = encodingDecl.ReplaceAllString(inst, `encoding="UTF-8"`)
			}
			if inst == "" {
				_, _ = w.WriteString("<?" + t.Target + "?>")
			} else {
				_, _ = w.WriteString("<?" + t.Target + " " + inst + "?>")
			}
		case xml.Directive:
			declareEntities(dec, t)
			_, _ = w.WriteString("<!" + string(t) + ">")
		}
	}

	if len(open) > 0 {
		return fmt.Errorf("identity transform: unclosed element <%s>", qname(open[len(open)-1]))
	}
	return w.Flush()
}

// declareEntities registers the general entities of a DOCTYPE internal
// subset so references to them expand in later text and attributes.
// External and parameter entities are not resolved.
func declareEntities(dec *xml.Decoder, d xml.Directive) {
	if !strings.HasPrefix(string(d), "DOCTYPE") {
		return
	}
	for _, m := range entityDecl.FindAllStringSubmatch(string(d), -1) {
		if dec.Entity == nil {
			dec.Entity = make(map[string]string)
		}
		if _, ok := dec.Entity[m[1]]; ok {
			// First declaration wins.
			continue
		}
		dec.Entity[m[1]] = m[2] + m[3]
	}
}

func writeStart(w *bufio.Writer, t xml.StartElement) {
	_, _ = w.WriteString("<" + qname(t.Name))
	for _, a := range t.Attr {
		_, _ = w.WriteString(" " + qname(a.Name) + `="`)
		_, _ = attrEscaper.WriteString(w, a.Value)
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')
}

// qname renders a raw (untranslated) name, where Space holds the prefix.
func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
