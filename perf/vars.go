package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency   = metric.NewHistogram("1m1s")
	GateLatency       = metric.NewHistogram("1m1s")
	RoundLatency      = metric.NewHistogram("10m10s")
	MulGates          = metric.NewCounter("10s1s")
	RevealGates       = metric.NewCounter("10s1s")
	FragmentsSent     = metric.NewCounter("10s1s")
	FragmentsReceived = metric.NewCounter("10s1s")
	VerticesEvaluated = metric.NewCounter("10s1s")
	RoutesChanged     = metric.NewCounter("10s1s")
	SentBytes         = metric.NewCounter("10s1s")
	RecvBytes         = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("pbgp:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("pbgp:GateLatency (µs)", GateLatency)
	expvar.Publish("pbgp:RoundLatency (ms)", RoundLatency)
	expvar.Publish("pbgp:MulGates/s", MulGates)
	expvar.Publish("pbgp:RevealGates/s", RevealGates)
	expvar.Publish("pbgp:FragmentsSent/s", FragmentsSent)
	expvar.Publish("pbgp:FragmentsReceived/s", FragmentsReceived)
	expvar.Publish("pbgp:VerticesEvaluated/s", VerticesEvaluated)
	expvar.Publish("pbgp:RoutesChanged/s", RoutesChanged)
	expvar.Publish("pbgp:SentBytes/s", SentBytes)
	expvar.Publish("pbgp:RecvBytes/s", RecvBytes)
}
