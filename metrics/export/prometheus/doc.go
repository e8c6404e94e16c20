// Package prometheus renders goSession engine metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] wraps a [goSession.Engine] and exposes an [http.Handler].
// Counters are named gosession_*_total; the sign-in latency histogram is
// gosession_signin_latency_seconds and appears only when latency histograms are on.
// Nothing is registered globally; callers mount the handler themselves.
package prometheus
