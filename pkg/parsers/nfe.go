package parsers

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/xmlpath"
)

type nfeState struct {
	cfg  *config
	doc  *models.NotaFiscalDocument
	item *models.Item
}

func (s *nfeState) openItem(code string) {
	s.doc.Items = append(s.doc.Items, models.Item{
		Number:      len(s.doc.Items) + 1,
		ProductCode: code,
	})
	s.item = &s.doc.Items[len(s.doc.Items)-1]
}

// onItem ignores item fields seen before the first cProd.
func onItem(f func(it *models.Item, text string)) func(*nfeState, string) {
	return func(s *nfeState, text string) {
		if s.item == nil {
			return
		}
		f(s.item, text)
	}
}

func onTotals(f func(t *models.Totals, v float64)) func(*nfeState, string) {
	return func(s *nfeState, text string) {
		f(&s.doc.Totals, parseFloat(text))
	}
}

func nfeIssuer(s *nfeState) *models.Party    { return &s.doc.Issuer }
func nfeRecipient(s *nfeState) *models.Party { return &s.doc.Recipient }

var nfeRules = buildNFeRules()

func buildNFeRules() []rule[nfeState] {
	rules := []rule[nfeState]{
		{"ide", "nNF", func(s *nfeState, v string) { s.doc.Number = v }},
		{"ide", "serie", func(s *nfeState, v string) { s.doc.Series = v }},
		{"ide", "dhEmi", func(s *nfeState, v string) { s.doc.IssuedAt = s.cfg.parseDate(v) }},
		{"ide", "dEmi", func(s *nfeState, v string) { s.doc.IssuedAt = s.cfg.parseDate(v) }},
		{"ide", "tpNF", func(s *nfeState, v string) {
			if code, ok := s.cfg.parseCode(v); ok && code == 0 {
				s.doc.Operation = models.OperationEntrada
			} else {
				s.doc.Operation = models.OperationSaida
			}
		}},

		{"prod", "cProd", func(s *nfeState, v string) { s.openItem(v) }},
		{"prod", "xProd", onItem(func(it *models.Item, v string) { it.Description = v })},
		{"prod", "NCM", onItem(func(it *models.Item, v string) { it.NCM = v })},
		{"prod", "CFOP", onItem(func(it *models.Item, v string) { it.CFOP = v })},
		{"prod", "uCom", onItem(func(it *models.Item, v string) { it.Unit = v })},
		{"prod", "qCom", onItem(func(it *models.Item, v string) { it.Quantity = parseFloat(v) })},
		{"prod", "vUnCom", onItem(func(it *models.Item, v string) { it.UnitValue = parseFloat(v) })},
		{"prod", "vProd", onItem(func(it *models.Item, v string) { it.TotalValue = parseFloat(v) })},
		{"prod", "cEAN", onItem(func(it *models.Item, v string) { it.EAN = strPtr(v) })},
		{"det", "infAdProd", onItem(func(it *models.Item, v string) { it.AdditionalInfo = strPtr(v) })},

		{"ICMSTot", "vBC", onTotals(func(t *models.Totals, v float64) { t.ICMSBase = v })},
		{"ICMSTot", "vICMS", onTotals(func(t *models.Totals, v float64) { t.ICMSValue = v })},
		{"ICMSTot", "vICMSDeson", onTotals(func(t *models.Totals, v float64) { t.ICMSDesonerado = v })},
		{"ICMSTot", "vFCP", onTotals(func(t *models.Totals, v float64) { t.FCPValue = v })},
		{"ICMSTot", "vBCST", onTotals(func(t *models.Totals, v float64) { t.ICMSSTBase = v })},
		{"ICMSTot", "vST", onTotals(func(t *models.Totals, v float64) { t.ICMSSTValue = v })},
		{"ICMSTot", "vProd", onTotals(func(t *models.Totals, v float64) { t.ProductsValue = v })},
		{"ICMSTot", "vFrete", onTotals(func(t *models.Totals, v float64) { t.FreightValue = v })},
		{"ICMSTot", "vSeg", onTotals(func(t *models.Totals, v float64) { t.InsuranceValue = v })},
		{"ICMSTot", "vDesc", onTotals(func(t *models.Totals, v float64) { t.DiscountValue = v })},
		{"ICMSTot", "vII", onTotals(func(t *models.Totals, v float64) { t.IIValue = v })},
		{"ICMSTot", "vIPI", onTotals(func(t *models.Totals, v float64) { t.IPIValue = v })},
		{"ICMSTot", "vPIS", onTotals(func(t *models.Totals, v float64) { t.PISValue = v })},
		{"ICMSTot", "vCOFINS", onTotals(func(t *models.Totals, v float64) { t.COFINSValue = v })},
		{"ICMSTot", "vOutro", onTotals(func(t *models.Totals, v float64) { t.OtherExpenses = v })},
		{"ICMSTot", "vNF", onTotals(func(t *models.Totals, v float64) { t.TotalValue = v })},

		{"infAdic", "infCpl", func(s *nfeState, v string) { s.doc.AdditionalInfo = strPtr(v) }},
		{"infProt", "nProt", func(s *nfeState, v string) { s.doc.AuthorizationProtocol = strPtr(v) }},
	}
	rules = append(rules, partyRules("emit", "enderEmit", nfeIssuer)...)
	rules = append(rules, partyRules("dest", "enderDest", nfeRecipient)...)
	return rules
}

// NFeParser builds NotaFiscalDocument records.
type NFeParser struct {
	cfg config
}

func NewNFeParser(opts ...Option) *NFeParser {
	return &NFeParser{cfg: newConfig(opts)}
}

func (p *NFeParser) Parse(xml string) (*models.NotaFiscalDocument, error) {
	now := p.cfg.now().UTC()
	s := &nfeState{
		cfg: &p.cfg,
		doc: &models.NotaFiscalDocument{
			IssuedAt:  now,
			Operation: models.OperationSaida,
			Issuer:    models.NewParty(),
			Recipient: models.NewParty(),
			Items:     []models.Item{},
		},
	}
	err := xmlpath.WalkString(xml, func(text string, path xmlpath.Path) {
		apply(nfeRules, s, text, path)
	})
	if err != nil {
		return nil, err
	}

	key, err := p.cfg.requireKey(xml)
	if err != nil {
		return nil, err
	}
	s.doc.AccessKey = key
	s.doc.ID = uuid.NewString()
	s.doc.Status = models.StatusCompleted
	s.doc.CreatedAt = now
	log.Debugf("parsed NF-e %s with %d items", key, len(s.doc.Items))
	return s.doc, nil
}

func (p *NFeParser) ParseBytes(b []byte) (*models.NotaFiscalDocument, error) {
	xml, err := DecodePayload(b, p.cfg.accelerator)
	if err != nil {
		return nil, err
	}
	return p.Parse(xml)
}

func (p *NFeParser) ParseFile(path string) (*models.NotaFiscalDocument, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return p.ParseBytes(bytes.TrimSpace(b))
}
