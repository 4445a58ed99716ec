package transform

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIdentity(t *testing.T, in string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, Identity().Transform(strings.NewReader(in), &out))
	return out.String()
}

func TestIdentityPreservesStructure(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "declaration and content",
			in:   `<?xml version="1.0" encoding="UTF-8"?><root a="1"><child>text &amp; more</child><!--note--></root>`,
			want: `<?xml version="1.0" encoding="UTF-8"?><root a="1"><child>text &amp; more</child><!--note--></root>`,
		},
		{
			name: "empty element expands",
			in:   `<root><empty/></root>`,
			want: `<root><empty></empty></root>`,
		},
		{
			name: "prefixes are kept",
			in:   `<x:doc xmlns:x="urn:x" xmlns="urn:d"><x:item x:id="1">v</x:item></x:doc>`,
			want: `<x:doc xmlns:x="urn:x" xmlns="urn:d"><x:item x:id="1">v</x:item></x:doc>`,
		},
		{
			name: "attribute escaping",
			in:   `<a title="&quot;q&quot; &lt;b&gt;"></a>`,
			want: `<a title="&quot;q&quot; &lt;b&gt;"></a>`,
		},
		{
			name: "cdata becomes text",
			in:   `<a><![CDATA[1 < 2]]></a>`,
			want: `<a>1 &lt; 2</a>`,
		},
		{
			name: "whitespace and processing instructions",
			in:   "<a>\n  <?pi data?>\n</a>",
			want: "<a>\n  <?pi data?>\n</a>",
		},
		{
			name: "doctype directive",
			in:   `<!DOCTYPE note><note></note>`,
			want: `<!DOCTYPE note><note></note>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runIdentity(t, tt.in))
		})
	}
}

func TestIdentityExpandsInternalEntities(t *testing.T) {
	in := `<!DOCTYPE a [<!ENTITY e "v"><!ENTITY q 'w'>]><a t="&e;">&e; &q;</a>`
	want := `<!DOCTYPE a [<!ENTITY e "v"><!ENTITY q 'w'>]><a t="v">v w</a>`
	assert.Equal(t, want, runIdentity(t, in))

	var out bytes.Buffer
	err := Identity().Transform(strings.NewReader(`<a>&undeclared;</a>`), &out)
	assert.Error(t, err)
}

func TestIdentityIsFixedPoint(t *testing.T) {
	in := `<?xml version="1.0"?><doc><p class="x">one<br/>two</p><!-- c --></doc>`
	once := runIdentity(t, in)
	twice := runIdentity(t, once)
	assert.Equal(t, once, twice)
}

func TestIdentityConvertsCharsetToUTF8(t *testing.T) {
	in := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><a>caf\xe9</a>"
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><a>café</a>`, runIdentity(t, in))
}

func TestIdentityRejectsMalformedMarkup(t *testing.T) {
	for _, in := range []string{
		"<a><b></a>",
		"<a>",
		"<a",
		"<?xml version=\"1.0\" encoding=\"no-such-charset\"?><a></a>",
	} {
		var out bytes.Buffer
		err := Identity().Transform(strings.NewReader(in), &out)
		assert.Error(t, err, in)
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestIdentityReturnsSinkError(t *testing.T) {
	sinkErr := errors.New("disk full")
	err := Identity().Transform(strings.NewReader("<a>x</a>"), failingWriter{err: sinkErr})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sinkErr))
}

func TestFuncAdapters(t *testing.T) {
	upper := Func(func(src io.Reader, dst io.Writer) error {
		b, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		_, err = dst.Write(bytes.ToUpper(b))
		return err
	})
	var out bytes.Buffer
	require.NoError(t, upper.Transform(strings.NewReader("<a/>"), &out))
	assert.Equal(t, "<A/>", out.String())

	double := ValueFunc(func(v any) (any, error) {
		return []any{v, v}, nil
	})
	got, err := double.TransformValue("x")
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "x"}, got)
}
