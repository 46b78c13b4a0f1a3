package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reactive_store_ops_total",
	Help: "Operations applied to reactive stores",
}, []string{"op"})

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reactive_store_dropped_events_total",
	Help: "Change events dropped because a subscriber fell behind",
})
