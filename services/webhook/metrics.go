package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sponsorportal",
	Subsystem: "webhook",
	Name:      "events_total",
	Help:      "Processor webhook deliveries by event kind and outcome.",
}, []string{"kind", "outcome"})
