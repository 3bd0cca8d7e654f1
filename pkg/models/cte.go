package models

import "time"

// ServiceType is the CT-e tpServ field.
type ServiceType string

const (
	ServiceNormal                  ServiceType = "normal"
	ServiceSubcontratacao          ServiceType = "subcontratacao"
	ServiceRedespacho              ServiceType = "redespacho"
	ServiceRedespachoIntermediario ServiceType = "redespacho_intermediario"
	ServiceVinculadoMultimodal     ServiceType = "servico_vinculado_multimodal"
)

// ServiceTypeFromCode maps tpServ (0-4) to a ServiceType, defaulting to normal.
func ServiceTypeFromCode(code uint64) ServiceType {
	switch code {
	case 1:
		return ServiceSubcontratacao
	case 2:
		return ServiceRedespacho
	case 3:
		return ServiceRedespachoIntermediario
	case 4:
		return ServiceVinculadoMultimodal
	}
	return ServiceNormal
}

type Modal string

const (
	ModalRodoviario  Modal = "rodoviario"
	ModalAereo       Modal = "aereo"
	ModalAquaviario  Modal = "aquaviario"
	ModalFerroviario Modal = "ferroviario"
	ModalDutoviario  Modal = "dutoviario"
	ModalMultimodal  Modal = "multimodal"
)

// ModalFromCode maps the CT-e modal code (01-06) to a Modal, defaulting to rodoviário.
func ModalFromCode(code uint64) Modal {
	switch code {
	case 2:
		return ModalAereo
	case 3:
		return ModalAquaviario
	case 4:
		return ModalFerroviario
	case 5:
		return ModalDutoviario
	case 6:
		return ModalMultimodal
	}
	return ModalRodoviario
}

type ServiceValues struct {
	TotalValue         float64 `json:"totalValue"`
	ReceivableValue    float64 `json:"receivableValue"`
	CargoTotalValue    float64 `json:"cargoTotalValue"`
	PredominantProduct string  `json:"predominantProduct"`
	OtherCargoTraits   *string `json:"otherCargoTraits,omitempty"`
}

type CargoQuantity struct {
	UnitCode    string  `json:"unitCode"`
	MeasureType string  `json:"measureType"`
	Quantity    float64 `json:"quantity"`
}

type CargoInfo struct {
	CargoValue         float64         `json:"cargoValue"`
	PredominantProduct string          `json:"predominantProduct"`
	GrossWeight        float64         `json:"grossWeight"`
	CubedWeight        *float64        `json:"cubedWeight,omitempty"`
	Quantities         []CargoQuantity `json:"quantities"`
}

type ReferencedDocument struct {
	Kind      string  `json:"kind"`
	AccessKey *string `json:"accessKey,omitempty"`
	Number    *string `json:"number,omitempty"`
	Series    *string `json:"series,omitempty"`
}

type ConhecimentoTransporteDocument struct {
	ID                    string               `json:"id"`
	AccessKey             string               `json:"accessKey"`
	Number                string               `json:"number"`
	Series                string               `json:"series"`
	IssuedAt              time.Time            `json:"issuedAt"`
	ServiceType           ServiceType          `json:"serviceType"`
	Issuer                Party                `json:"issuer"`
	Sender                Party                `json:"sender"`
	Recipient             Party                `json:"recipient"`
	Shipper               *Party               `json:"shipper,omitempty"`
	Receiver              *Party               `json:"receiver,omitempty"`
	Service               ServiceValues        `json:"service"`
	Cargo                 CargoInfo            `json:"cargo"`
	ReferencedDocuments   []ReferencedDocument `json:"referencedDocuments"`
	Modal                 Modal                `json:"modal"`
	AdditionalInfo        *string              `json:"additionalInfo,omitempty"`
	AuthorizationProtocol *string              `json:"authorizationProtocol,omitempty"`
	Status                ProcessingStatus     `json:"status"`
	CreatedAt             time.Time            `json:"createdAt"`
}

func (c *ConhecimentoTransporteDocument) Type() DocumentType {
	return ConhecimentoTransporte
}

func (c *ConhecimentoTransporteDocument) Key() string {
	return c.AccessKey
}

func (c *ConhecimentoTransporteDocument) Summary() DocumentSummary {
	return DocumentSummary{
		DocumentType: ConhecimentoTransporte,
		AccessKey:    c.AccessKey,
		Number:       c.Number,
		Series:       c.Series,
		IssuedAt:     c.IssuedAt,
		Issuer:       c.Issuer.Name,
		Recipient:    c.Recipient.Name,
		TotalValue:   c.Service.TotalValue,
	}
}

var _ Document = (*ConhecimentoTransporteDocument)(nil)
