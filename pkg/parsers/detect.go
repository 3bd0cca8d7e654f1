package parsers

import (
	"github.com/denysvitali/fiscal-ingest/pkg/accel"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

var detectionTags = []struct {
	tag     string
	docType models.DocumentType
}{
	{"nfeProc", models.NotaFiscal},
	{"NFe", models.NotaFiscal},
	{"cteProc", models.ConhecimentoTransporte},
	{"CTe", models.ConhecimentoTransporte},
}

// DetectDocumentType looks for the root elements of each document type.
// NF-e markers win when both kinds are present. A nil accelerator means accel.Default().
func DetectDocumentType(payload []byte, acc accel.Accelerator) (models.DocumentType, bool) {
	if acc == nil {
		acc = accel.Default()
	}
	for _, d := range detectionTags {
		if acc.FindTag(payload, d.tag) >= 0 {
			return d.docType, true
		}
	}
	return "", false
}
