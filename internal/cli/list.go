package cli

import (
	"fmt"
	"io"
)

// StringList is a simple list of strings.
// Created via Output.StringList().
type StringList struct {
	out   *Output
	meta  Meta
	items []string
}

// Add appends strings to the list.
func (l *StringList) Add(items ...string) *StringList {
	l.items = append(l.items, items...)
	return l
}

// Render outputs the list in the configured format.
func (l *StringList) Render() error {
	return l.out.Render(l)
}

// Meta returns the list metadata.
func (l *StringList) Meta() Meta {
	return l.meta
}

// RenderText writes one item per line.
func (l *StringList) RenderText(w io.Writer) error {
	for _, item := range l.items {
		if _, err := fmt.Fprintln(w, item); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON returns the items as an array of strings.
func (l *StringList) RenderJSON() any {
	if l.items == nil {
		return []string{}
	}
	return l.items
}

// RenderMarkdown writes a bullet list.
func (l *StringList) RenderMarkdown(w io.Writer) error {
	for _, item := range l.items {
		if _, err := fmt.Fprintf(w, "- %s\n", item); err != nil {
			return err
		}
	}
	return nil
}
