package models

import "time"

// OperationKind is the NF-e tpNF field.
type OperationKind string

const (
	OperationEntrada OperationKind = "entrada"
	OperationSaida   OperationKind = "saida"
)

type Item struct {
	Number         int     `json:"number"`
	ProductCode    string  `json:"productCode"`
	Description    string  `json:"description"`
	NCM            string  `json:"ncm"`
	CFOP           string  `json:"cfop"`
	Unit           string  `json:"unit"`
	Quantity       float64 `json:"quantity"`
	UnitValue      float64 `json:"unitValue"`
	TotalValue     float64 `json:"totalValue"`
	EAN            *string `json:"ean,omitempty"`
	AdditionalInfo *string `json:"additionalInfo,omitempty"`
}

// Totals mirrors the ICMSTot group of an NF-e.
type Totals struct {
	ICMSBase       float64 `json:"icmsBase"`
	ICMSValue      float64 `json:"icmsValue"`
	ICMSDesonerado float64 `json:"icmsDesonerado"`
	FCPValue       float64 `json:"fcpValue"`
	ICMSSTBase     float64 `json:"icmsStBase"`
	ICMSSTValue    float64 `json:"icmsStValue"`
	ProductsValue  float64 `json:"productsValue"`
	FreightValue   float64 `json:"freightValue"`
	InsuranceValue float64 `json:"insuranceValue"`
	DiscountValue  float64 `json:"discountValue"`
	IIValue        float64 `json:"iiValue"`
	IPIValue       float64 `json:"ipiValue"`
	PISValue       float64 `json:"pisValue"`
	COFINSValue    float64 `json:"cofinsValue"`
	OtherExpenses  float64 `json:"otherExpenses"`
	TotalValue     float64 `json:"totalValue"`
}

type NotaFiscalDocument struct {
	ID                    string           `json:"id"`
	AccessKey             string           `json:"accessKey"`
	Number                string           `json:"number"`
	Series                string           `json:"series"`
	IssuedAt              time.Time        `json:"issuedAt"`
	Operation             OperationKind    `json:"operation"`
	Issuer                Party            `json:"issuer"`
	Recipient             Party            `json:"recipient"`
	Items                 []Item           `json:"items"`
	Totals                Totals           `json:"totals"`
	AdditionalInfo        *string          `json:"additionalInfo,omitempty"`
	AuthorizationProtocol *string          `json:"authorizationProtocol,omitempty"`
	Status                ProcessingStatus `json:"status"`
	CreatedAt             time.Time        `json:"createdAt"`
}

func (n *NotaFiscalDocument) Type() DocumentType {
	return NotaFiscal
}

func (n *NotaFiscalDocument) Key() string {
	return n.AccessKey
}

func (n *NotaFiscalDocument) Summary() DocumentSummary {
	return DocumentSummary{
		DocumentType: NotaFiscal,
		AccessKey:    n.AccessKey,
		Number:       n.Number,
		Series:       n.Series,
		IssuedAt:     n.IssuedAt,
		Issuer:       n.Issuer.Name,
		Recipient:    n.Recipient.Name,
		TotalValue:   n.Totals.TotalValue,
	}
}

var _ Document = (*NotaFiscalDocument)(nil)
