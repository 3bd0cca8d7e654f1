package parsers

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/xmlpath"
)

type cteState struct {
	cfg         *config
	doc         *models.ConhecimentoTransporteDocument
	quantity    *models.CargoQuantity
	weightIsSet bool
}

func cteIssuer(s *cteState) *models.Party    { return &s.doc.Issuer }
func cteSender(s *cteState) *models.Party    { return &s.doc.Sender }
func cteRecipient(s *cteState) *models.Party { return &s.doc.Recipient }

func cteShipper(s *cteState) *models.Party {
	if s.doc.Shipper == nil {
		p := models.NewParty()
		s.doc.Shipper = &p
	}
	return s.doc.Shipper
}

func cteReceiver(s *cteState) *models.Party {
	if s.doc.Receiver == nil {
		p := models.NewParty()
		s.doc.Receiver = &p
	}
	return s.doc.Receiver
}

// currentQuantity returns the infQ being filled, opening one when a field
// arrives before any other of its group.
func (s *cteState) currentQuantity() *models.CargoQuantity {
	if s.quantity == nil {
		s.doc.Cargo.Quantities = append(s.doc.Cargo.Quantities, models.CargoQuantity{})
		s.quantity = &s.doc.Cargo.Quantities[len(s.doc.Cargo.Quantities)-1]
	}
	return s.quantity
}

var cteRules = buildCTeRules()

func buildCTeRules() []rule[cteState] {
	rules := []rule[cteState]{
		{"ide", "nCT", func(s *cteState, v string) { s.doc.Number = v }},
		{"ide", "serie", func(s *cteState, v string) { s.doc.Series = v }},
		{"ide", "dhEmi", func(s *cteState, v string) { s.doc.IssuedAt = s.cfg.parseDate(v) }},
		{"ide", "tpServ", func(s *cteState, v string) {
			code, _ := s.cfg.parseCode(v)
			s.doc.ServiceType = models.ServiceTypeFromCode(code)
		}},
		{"ide", "modal", func(s *cteState, v string) {
			code, _ := s.cfg.parseCode(v)
			s.doc.Modal = models.ModalFromCode(code)
		}},

		{"vPrest", "vTPrest", func(s *cteState, v string) { s.doc.Service.TotalValue = parseFloat(v) }},
		{"vPrest", "vRec", func(s *cteState, v string) { s.doc.Service.ReceivableValue = parseFloat(v) }},

		{"infCarga", "vCarga", func(s *cteState, v string) {
			s.doc.Cargo.CargoValue = parseFloat(v)
			s.doc.Service.CargoTotalValue = s.doc.Cargo.CargoValue
		}},
		{"infCarga", "proPred", func(s *cteState, v string) {
			s.doc.Cargo.PredominantProduct = v
			s.doc.Service.PredominantProduct = v
		}},
		{"infCarga", "xOutCat", func(s *cteState, v string) { s.doc.Service.OtherCargoTraits = strPtr(v) }},
		{"infQ", "cUnid", func(s *cteState, v string) { s.currentQuantity().UnitCode = v }},
		{"infQ", "tpMed", func(s *cteState, v string) { s.currentQuantity().MeasureType = v }},
		{"infQ", "qCarga", func(s *cteState, v string) {
			q := parseFloat(v)
			s.currentQuantity().Quantity = q
			// qCarga closes the group
			s.quantity = nil
			if !s.weightIsSet {
				s.doc.Cargo.GrossWeight = q
				s.weightIsSet = true
			}
		}},
		{"infCarga", "qCarga", func(s *cteState, v string) {
			if !s.weightIsSet {
				s.doc.Cargo.GrossWeight = parseFloat(v)
				s.weightIsSet = true
			}
		}},

		{"infNFe", "chave", func(s *cteState, v string) {
			s.doc.ReferencedDocuments = append(s.doc.ReferencedDocuments, models.ReferencedDocument{
				Kind:      string(models.NotaFiscal),
				AccessKey: strPtr(v),
			})
		}},

		{"compl", "xObs", func(s *cteState, v string) { s.doc.AdditionalInfo = strPtr(v) }},
		{"infProt", "nProt", func(s *cteState, v string) { s.doc.AuthorizationProtocol = strPtr(v) }},
	}
	rules = append(rules, partyRules("emit", "enderEmit", cteIssuer)...)
	rules = append(rules, partyRules("rem", "enderReme", cteSender)...)
	rules = append(rules, partyRules("dest", "enderDest", cteRecipient)...)
	rules = append(rules, partyRules("exped", "enderExped", cteShipper)...)
	rules = append(rules, partyRules("receb", "enderReceb", cteReceiver)...)
	return rules
}

// CTeParser builds ConhecimentoTransporteDocument records.
type CTeParser struct {
	cfg config
}

func NewCTeParser(opts ...Option) *CTeParser {
	return &CTeParser{cfg: newConfig(opts)}
}

func (p *CTeParser) Parse(xml string) (*models.ConhecimentoTransporteDocument, error) {
	now := p.cfg.now().UTC()
	s := &cteState{
		cfg: &p.cfg,
		doc: &models.ConhecimentoTransporteDocument{
			IssuedAt:            now,
			ServiceType:         models.ServiceNormal,
			Modal:               models.ModalRodoviario,
			Issuer:              models.NewParty(),
			Sender:              models.NewParty(),
			Recipient:           models.NewParty(),
			Cargo:               models.CargoInfo{Quantities: []models.CargoQuantity{}},
			ReferencedDocuments: []models.ReferencedDocument{},
		},
	}
	err := xmlpath.WalkString(xml, func(text string, path xmlpath.Path) {
		apply(cteRules, s, text, path)
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
	log.Debugf("parsed CT-e %s", key)
	return s.doc, nil
}

func (p *CTeParser) ParseBytes(b []byte) (*models.ConhecimentoTransporteDocument, error) {
	xml, err := DecodePayload(b, p.cfg.accelerator)
	if err != nil {
		return nil, err
	}
	return p.Parse(xml)
}

func (p *CTeParser) ParseFile(path string) (*models.ConhecimentoTransporteDocument, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return p.ParseBytes(bytes.TrimSpace(b))
}
