package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_ws_active_connections",
		Help: "Active websocket connections",
	})
	ConnectedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_users",
		Help: "Identified users with a live connection",
	})
	Rooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms",
		Help: "Rooms with at least one member",
	})
	FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_frames_sent_total",
		Help: "Outbound frames queued to sessions, by event",
	}, []string{"event"})
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_frames_dropped_total",
		Help: "Outbound frames dropped because the session was gone or too slow",
	})
	InboundRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_inbound_rejected_total",
		Help: "Inbound events rejected before reaching the gateway, by reason",
	}, []string{"reason"})
	PushRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_push_requests_total",
		Help: "Push notification deliveries by outcome",
	}, []string{"outcome"})
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(Connections, ConnectedUsers, Rooms, FramesSent, FramesDropped, InboundRejected, PushRequests)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
