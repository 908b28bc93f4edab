package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatgw_http_requests_total", Help: "HTTP requests"},
		[]string{"endpoint", "status"},
	)
	WebhookMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatgw_webhook_messages_total", Help: "Inbound webhook messages"},
		[]string{"provider", "kind"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatgw_dispatches_total", Help: "Capability dispatch outcomes"},
		[]string{"capability", "result"},
	)
	QuotaDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatgw_quota_denied_total", Help: "Entitlement denials"},
		[]string{"reason"},
	)
	OutboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatgw_outbound_sends_total", Help: "Provider send outcomes"},
		[]string{"provider", "result"},
	)
	AILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "chatgw_ai_latency_seconds", Help: "AI backend call latency"},
		[]string{"operation"},
	)
	StatusEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatgw_status_events_total", Help: "Delivery status events"},
		[]string{"provider", "status"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests, WebhookMessages, Dispatches, QuotaDenied, OutboundSends, AILatency, StatusEvents)
}
