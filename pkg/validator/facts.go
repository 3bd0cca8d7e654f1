package validator

import (
	"strconv"

	"github.com/denysvitali/fiscal-ingest/pkg/xmlpath"
)

type itemFacts struct {
	number int
	cfop   string
	ncm    string
	hasIPI bool

	icmsBase  *float64
	icmsRate  *float64
	icmsValue *float64
}

// partyID is a CNPJ or CPF as found under a party element.
type partyID struct {
	party string
	tag   string
	value string
}

// facts is everything the checks read from a document, gathered in one walk.
type facts struct {
	items       []*itemFacts
	issuerUF    string
	recipientUF string
	icmsTotal   *float64
	emission    string
	taxIDs      []partyID
	parseErr    error
}

func (f *facts) item() *itemFacts {
	if len(f.items) == 0 {
		return nil
	}
	return f.items[len(f.items)-1]
}

func number(text string) *float64 {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &v
}

func extractFacts(xml string) *facts {
	f := &facts{}
	f.parseErr = xmlpath.WalkString(xml, func(text string, path xmlpath.Path) {
		switch {
		case path.Under("prod", "cProd"):
			f.items = append(f.items, &itemFacts{number: len(f.items) + 1})
		case path.Under("ide", "dhEmi"), path.Under("ide", "dEmi"):
			if f.emission == "" {
				f.emission = text
			}
		case path.Under("emit", "CNPJ"), path.Under("emit", "CPF"):
			f.taxIDs = append(f.taxIDs, partyID{party: "emitente", tag: path.Leaf(), value: text})
		case path.Under("dest", "CNPJ"), path.Under("dest", "CPF"):
			f.taxIDs = append(f.taxIDs, partyID{party: "destinatario", tag: path.Leaf(), value: text})
		case path.Under("enderEmit", "UF"):
			f.issuerUF = text
		case path.Under("enderDest", "UF"):
			f.recipientUF = text
		case path.Under("ICMSTot", "vICMS"):
			f.icmsTotal = number(text)
		}

		it := f.item()
		if it == nil || !path.Has("det") {
			return
		}
		switch {
		case path.Under("prod", "CFOP"):
			it.cfop = text
		case path.Under("prod", "NCM"):
			it.ncm = text
		case path.Under("IPI", "vIPI"):
			it.hasIPI = true
		case path.Under("ICMS", "vBC"):
			it.icmsBase = number(text)
		case path.Under("ICMS", "pICMS"):
			it.icmsRate = number(text)
		case path.Under("ICMS", "vICMS"):
			it.icmsValue = number(text)
		}
	})
	return f
}
