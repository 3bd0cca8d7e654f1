// Package metrics counts ingestion outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

type Sink interface {
	DocumentProcessed(docType models.DocumentType)
	DocumentDuplicate(docType models.DocumentType)
	ValidationSaved()
}

type Nop struct{}

var _ Sink = Nop{}

func (Nop) DocumentProcessed(models.DocumentType) {}
func (Nop) DocumentDuplicate(models.DocumentType) {}
func (Nop) ValidationSaved()                      {}

const namespace = "fiscal"

type Prometheus struct {
	registry    *prometheus.Registry
	processed   *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	validations prometheus.Counter
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus registers the ingestion counters on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents stored for the first time.",
		}, []string{"document_type"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_duplicate_total",
			Help:      "Documents skipped because their access key was already stored.",
		}, []string{"document_type"}),
		validations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_saved_total",
			Help:      "Validation results persisted.",
		}),
	}
	p.registry.MustRegister(p.processed, p.duplicates, p.validations)
	return p
}

func (p *Prometheus) DocumentProcessed(docType models.DocumentType) {
	p.processed.WithLabelValues(string(docType)).Inc()
}

func (p *Prometheus) DocumentDuplicate(docType models.DocumentType) {
	p.duplicates.WithLabelValues(string(docType)).Inc()
}

func (p *Prometheus) ValidationSaved() {
	p.validations.Inc()
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Processed, Duplicates and Validations read the current counter values.
func (p *Prometheus) Processed(docType models.DocumentType) float64 {
	return read(p.processed.WithLabelValues(string(docType)))
}

func (p *Prometheus) Duplicates(docType models.DocumentType) float64 {
	return read(p.duplicates.WithLabelValues(string(docType)))
}

func (p *Prometheus) Validations() float64 {
	return read(p.validations)
}
