package cli

import (
	"fmt"
	"io"
	"strings"
)

// KV renders key-value pairs in insertion order.
// Created via Output.KV().
type KV struct {
	out   *Output
	meta  Meta
	pairs []kvPair
}

type kvPair struct {
	key   string
	value any
}

// Set adds a key-value pair. Value can be any type.
func (k *KV) Set(key string, value any) *KV {
	k.pairs = append(k.pairs, kvPair{key: key, value: value})
	return k
}

// Render outputs the key-value pairs in the configured format.
func (k *KV) Render() error {
	return k.out.Render(k)
}

// Meta returns the metadata.
func (k *KV) Meta() Meta {
	return k.meta
}

// RenderText writes aligned key: value pairs.
func (k *KV) RenderText(w io.Writer) error {
	width := 0
	for _, p := range k.pairs {
		width = max(width, len(p.key)+1)
	}

	for _, p := range k.pairs {
		label := p.key + ":"
		pad := strings.Repeat(" ", width-len(label))
		if _, err := fmt.Fprintf(w, "%s%s  %v\n", k.out.styles.key.Render(label), pad, p.value); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON returns the data as an object.
func (k *KV) RenderJSON() any {
	result := make(map[string]any, len(k.pairs))
	for _, p := range k.pairs {
		result[toJSONKey(p.key)] = p.value
	}
	return result
}

// RenderMarkdown writes key-value pairs as a definition-style list.
func (k *KV) RenderMarkdown(w io.Writer) error {
	for _, p := range k.pairs {
		if _, err := fmt.Fprintf(w, "**%s:** %s\n\n", p.key, formatMarkdownValue(p.value)); err != nil {
			return err
		}
	}
	return nil
}

// formatMarkdownValue formats a value for markdown output.
func formatMarkdownValue(v any) string {
	s := fmt.Sprintf("%v", v)

	// URIs and ids read better as code.
	if looksLikeIdentifier(s) {
		return "`" + s + "`"
	}

	return strings.ReplaceAll(s, "|", "\\|")
}

// looksLikeIdentifier reports whether s is a document URI or a
// transaction id.
func looksLikeIdentifier(s string) bool {
	if strings.HasPrefix(s, "/") && !strings.ContainsAny(s, " \t\n") {
		return true
	}
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
			if !isHex {
				return false
			}
		}
	}
	return true
}
