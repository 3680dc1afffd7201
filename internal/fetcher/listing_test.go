package fetcher

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apacheIndex = `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 3.2 Final//EN">
<html><head><title>Index of /FTP/PDA/demonstracoes_contabeis/2024</title></head>
<body><h1>Index of /FTP/PDA/demonstracoes_contabeis/2024</h1>
<table>
<tr><th><a href="?C=N;O=D">Name</a></th><th><a href="?C=M;O=A">Last modified</a></th></tr>
<tr><td><a href="/FTP/PDA/demonstracoes_contabeis/">Parent Directory</a></td></tr>
<tr><td><a href="1T2024.zip">1T2024.zip</a></td></tr>
<tr><td><a href="2T2024.zip">2T2024.zip</a></td></tr>
<tr><td><a href="3T2024.zip">3T2024.zip</a></td></tr>
<tr><td><a href="3T2024.zip">duplicate</a></td></tr>
<tr><td><a href="https://www.gov.br/ans">elsewhere</a></td></tr>
<tr><td><a href="#top">top</a></td></tr>
</table></body></html>`

func TestParseIndex_Apache(t *testing.T) {
	base, err := url.Parse("https://dadosabertos.ans.gov.br/FTP/PDA/demonstracoes_contabeis/2024/")
	require.NoError(t, err)

	entries, err := ParseIndex(strings.NewReader(apacheIndex), base)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
		assert.False(t, e.Dir)
	}
	assert.Equal(t, []string{"1T2024.zip", "2T2024.zip", "3T2024.zip"}, names)
	assert.Equal(t, "https://dadosabertos.ans.gov.br/FTP/PDA/demonstracoes_contabeis/2024/1T2024.zip", entries[0].URL)
}

func TestParseIndex_AbsoluteLinks(t *testing.T) {
	base, err := url.Parse("https://host/data/")
	require.NoError(t, err)

	html := `<a href="/data/2023/">2023/</a><a href="/data/2023/nested/x.zip">deep</a><a href="/other/">x</a>`
	entries, err := ParseIndex(strings.NewReader(html), base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{Name: "2023", URL: "https://host/data/2023/", Dir: true}, entries[0])
}

func TestParseIndex_EscapedNames(t *testing.T) {
	base, err := url.Parse("https://host/dir/")
	require.NoError(t, err)

	entries, err := ParseIndex(strings.NewReader(`<a href="Relatorio%20cadop.csv">r</a>`), base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Relatorio cadop.csv", entries[0].Name)
}

func TestParseIndex_Empty(t *testing.T) {
	base, err := url.Parse("https://host/dir/")
	require.NoError(t, err)

	entries, err := ParseIndex(strings.NewReader("<html><body>nothing here</body></html>"), base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
