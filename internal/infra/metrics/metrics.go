package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts image lifecycle outcomes.
type Metrics struct {
	uploads           prometheus.Counter
	deletes           prometheus.Counter
	rejected          *prometheus.CounterVec
	mediaDeleteFailed prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		uploads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "humayat",
			Name:      "images_uploaded_total",
			Help:      "Images stored successfully.",
		}),
		deletes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "humayat",
			Name:      "images_deleted_total",
			Help:      "Image records removed.",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humayat",
			Name:      "uploads_rejected_total",
			Help:      "Uploads refused before reaching the media service.",
		}, []string{"reason"}),
		mediaDeleteFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "humayat",
			Name:      "media_delete_failures_total",
			Help:      "Binaries the media service failed to remove.",
		}),
	}
}

func (m *Metrics) ImageUploaded()               { m.uploads.Inc() }
func (m *Metrics) ImageDeleted()                { m.deletes.Inc() }
func (m *Metrics) UploadRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }
func (m *Metrics) MediaDeleteFailed()           { m.mediaDeleteFailed.Inc() }
