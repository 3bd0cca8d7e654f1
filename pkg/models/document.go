package models

import (
	"time"
)

// DocumentType discriminates the fiscal documents handled by the engine.
type DocumentType string

const (
	NotaFiscal             DocumentType = "NFe"
	ConhecimentoTransporte DocumentType = "CTe"
)

func (t DocumentType) IsValid() bool {
	switch t {
	case NotaFiscal, ConhecimentoTransporte:
		return true
	}
	return false
}

// Label is the human-facing name used in messages ("NF-e", "CT-e").
func (t DocumentType) Label() string {
	switch t {
	case NotaFiscal:
		return "NF-e"
	case ConhecimentoTransporte:
		return "CT-e"
	}
	return string(t)
}

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Document is implemented by every fiscal record that can be stored.
type Document interface {
	Type() DocumentType
	Key() string
	Summary() DocumentSummary
}

type Address struct {
	Street           string  `json:"street,omitempty"`
	Number           string  `json:"number,omitempty"`
	Complement       *string `json:"complement,omitempty"`
	District         string  `json:"district,omitempty"`
	MunicipalityCode string  `json:"municipalityCode,omitempty"`
	Municipality     string  `json:"municipality,omitempty"`
	State            string  `json:"state,omitempty"`
	PostalCode       string  `json:"postalCode,omitempty"`
	CountryCode      string  `json:"countryCode"`
	Country          string  `json:"country"`
}

// NewAddress returns an empty address located in Brazil.
func NewAddress() Address {
	return Address{CountryCode: "1058", Country: "Brasil"}
}

// Party is any participant of a fiscal document (emitente, destinatário, remetente...).
// TaxID holds the CNPJ or CPF in digits-only form.
type Party struct {
	TaxID             string  `json:"taxId"`
	Name              string  `json:"name"`
	TradeName         *string `json:"tradeName,omitempty"`
	Address           Address `json:"address"`
	StateRegistration *string `json:"stateRegistration,omitempty"`
	Phone             *string `json:"phone,omitempty"`
	Email             *string `json:"email,omitempty"`
}

func NewParty() Party {
	return Party{Address: NewAddress()}
}

// DocumentSummary is the listing view shared by NF-e and CT-e.
type DocumentSummary struct {
	DocumentType DocumentType `json:"documentType"`
	AccessKey    string       `json:"accessKey"`
	Number       string       `json:"number"`
	Series       string       `json:"series"`
	IssuedAt     time.Time    `json:"issuedAt"`
	Issuer       string       `json:"issuer"`
	Recipient    string       `json:"recipient"`
	TotalValue   float64      `json:"totalValue"`
}

type Stats struct {
	TotalDocuments int64 `json:"totalDocuments"`
	NotasFiscais   int64 `json:"notasFiscais"`
	Ctes           int64 `json:"ctes"`
	ProcessedToday int64 `json:"processedToday"`
}
