package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency   = metric.NewHistogram("1m1s")
	MessagesSent      = metric.NewCounter("10s1s")
	MessagesReceived  = metric.NewCounter("10s1s")
	BytesSent         = metric.NewCounter("10s1s")
	BytesReceived     = metric.NewCounter("10s1s")
	Anomalies         = metric.NewCounter("1m1s")
	RouteChanges      = metric.NewCounter("1m1s")
	SessionsUp        = metric.NewCounter("1m1s")
	SessionsDown      = metric.NewCounter("1m1s")
	RawTableSize      = metric.NewHistogram("1m1s")
	FramesDropped     = metric.NewCounter("10s1s")
	FramesDelivered   = metric.NewCounter("10s1s")
	DeliveryLatencyUs = metric.NewHistogram("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("bgpsim:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("bgpsim:MessagesSent/s", MessagesSent)
	expvar.Publish("bgpsim:MessagesReceived/s", MessagesReceived)
	expvar.Publish("bgpsim:BytesSent/s", BytesSent)
	expvar.Publish("bgpsim:BytesReceived/s", BytesReceived)
	expvar.Publish("bgpsim:Anomalies", Anomalies)
	expvar.Publish("bgpsim:RouteChanges", RouteChanges)
	expvar.Publish("bgpsim:SessionsUp", SessionsUp)
	expvar.Publish("bgpsim:SessionsDown", SessionsDown)
	expvar.Publish("bgpsim:RawTableSize", RawTableSize)
	expvar.Publish("bgpsim:FramesDropped/s", FramesDropped)
	expvar.Publish("bgpsim:FramesDelivered/s", FramesDelivered)
	expvar.Publish("bgpsim:DeliveryLatency (µs)", DeliveryLatencyUs)
}
