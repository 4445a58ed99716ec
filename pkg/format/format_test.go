package format

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/gezibash/docio/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", Unknown},
		{"unknown", Unknown},
		{"XML", XML},
		{" json ", JSON},
		{"Text", Text},
		{"binary", Binary},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseRejectsUnknownName(t *testing.T) {
	_, err := Parse("yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, docerrors.ErrInvalidArgument))
}

func TestStringRoundTrip(t *testing.T) {
	for _, f := range []Format{Unknown, XML, JSON, Text, Binary} {
		got, err := Parse(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
		assert.True(t, f.Valid())
	}
	assert.Equal(t, "format(42)", Format(42).String())
	assert.False(t, Format(42).Valid())
}

func TestMimetypes(t *testing.T) {
	tests := []struct {
		mimetype string
		want     Format
	}{
		{"application/xml", XML},
		{"text/xml; charset=utf-8", XML},
		{"application/atom+xml", XML},
		{"application/json", JSON},
		{"application/ld+json", JSON},
		{"text/plain", Text},
		{"text/csv", Text},
		{"application/octet-stream", Binary},
		{"image/png", Binary},
		{"application/x-unknown", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromMimetype(tt.mimetype), tt.mimetype)
	}

	for _, f := range []Format{XML, JSON, Text, Binary} {
		assert.Equal(t, f, FromMimetype(f.DefaultMimetype()))
	}
	assert.Empty(t, Unknown.DefaultMimetype())
}
