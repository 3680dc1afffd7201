package fetcher

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupEncoding(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8", "latin1", "ISO-8859-1", "windows-1252"} {
		_, err := LookupEncoding(name)
		assert.NoError(t, err, "encoding %q", name)
	}

	_, err := LookupEncoding("not-a-charset")
	assert.Error(t, err)
}

func TestEncodeWriter_Latin1RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := EncodeWriter(&buf, "latin1")
	require.NoError(t, err)

	_, err = io.WriteString(w, "Cooperativa Médica;São Paulo")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []byte("Cooperativa M\xe9dica;S\xe3o Paulo"), buf.Bytes())

	r, err := DecodeReader(bytes.NewReader(buf.Bytes()), "latin1")
	require.NoError(t, err)
	back, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Cooperativa Médica;São Paulo", string(back))
}

func TestEncodeWriter_ReplacesUnsupported(t *testing.T) {
	var buf bytes.Buffer
	w, err := EncodeWriter(&buf, "latin1")
	require.NoError(t, err)

	_, err = io.WriteString(w, "a€b")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "a"))
	assert.True(t, strings.HasSuffix(out, "b"))
	assert.NotContains(t, out, "€")
}

func TestEncodeWriter_UTF8Passthrough(t *testing.T) {
	var buf bytes.Buffer
	w, err := EncodeWriter(&buf, "utf-8")
	require.NoError(t, err)
	_, err = io.WriteString(w, "São")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "São", buf.String())
}
