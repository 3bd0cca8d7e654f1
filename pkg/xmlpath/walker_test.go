package xmlpath_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/xmlpath"
)

type visit struct {
	text string
	path string
}

func collect(t *testing.T, doc string) []visit {
	t.Helper()
	var got []visit
	err := xmlpath.WalkString(doc, func(text string, path xmlpath.Path) {
		got = append(got, visit{text: text, path: path.String()})
	})
	require.NoError(t, err)
	return got
}

func TestWalk_ReportsPathPerTextNode(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe">
  <NFe>
    <infNFe Id="NFe123">
      <emit><CNPJ>11222333000181</CNPJ><xNome>Empresa &amp; Filhos</xNome></emit>
      <dest>
        <CNPJ>98765432000100</CNPJ>
      </dest>
    </infNFe>
  </NFe>
</nfeProc>`

	got := collect(t, doc)
	assert.Equal(t, []visit{
		{"11222333000181", "nfeProc/NFe/infNFe/emit/CNPJ"},
		{"Empresa & Filhos", "nfeProc/NFe/infNFe/emit/xNome"},
		{"98765432000100", "nfeProc/NFe/infNFe/dest/CNPJ"},
	}, got)
}

func TestWalk_StripsNamespacePrefixes(t *testing.T) {
	got := collect(t, `<ns:root xmlns:ns="urn:x"><ns:leaf> value </ns:leaf></ns:root>`)
	require.Len(t, got, 1)
	assert.Equal(t, visit{"value", "root/leaf"}, got[0])
}

func TestWalk_DeclaredLatin1IsAccepted(t *testing.T) {
	got := collect(t, `<?xml version="1.0" encoding="ISO-8859-1"?><a><b>São Paulo</b></a>`)
	require.Len(t, got, 1)
	assert.Equal(t, "São Paulo", got[0].text)
}

func TestWalk_Malformed(t *testing.T) {
	cases := map[string]string{
		"mismatched": `<a><b>x</a></b>`,
		"unclosed":   `<a><b>x</b>`,
		"garbage":    `<a><<b></a>`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			err := xmlpath.WalkString(doc, func(string, xmlpath.Path) {})
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrXmlParse)
		})
	}
}

func TestWalk_Reader(t *testing.T) {
	n := 0
	err := xmlpath.Walk(strings.NewReader(`<a><b>1</b><b>2</b><c/></a>`), func(text string, path xmlpath.Path) {
		n++
		assert.Equal(t, "b", path.Leaf())
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPath_Under(t *testing.T) {
	p := xmlpath.Path{"CTe", "infCte", "rem", "enderReme", "UF"}
	assert.True(t, p.Under("rem", "UF"))
	assert.True(t, p.Under("", "UF"))
	assert.False(t, p.Under("dest", "UF"))
	assert.False(t, p.Under("rem", "xMun"))
	assert.False(t, xmlpath.Path{"UF"}.Under("UF", "UF"))
	assert.Equal(t, "", xmlpath.Path{}.Leaf())
}
