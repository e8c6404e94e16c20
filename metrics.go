package goSession

import internalmetrics "github.com/MrEthical07/goSession/internal/metrics"

// MetricID identifies a specific counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricPasswordSignInSuccess   = internalmetrics.MetricPasswordSignInSuccess
	MetricPasswordSignInFailure   = internalmetrics.MetricPasswordSignInFailure
	MetricRegisterSuccess         = internalmetrics.MetricRegisterSuccess
	MetricRegisterFailure         = internalmetrics.MetricRegisterFailure
	MetricFederatedSignInSuccess  = internalmetrics.MetricFederatedSignInSuccess
	MetricFederatedSignInFailure  = internalmetrics.MetricFederatedSignInFailure
	MetricFederatedCancelled      = internalmetrics.MetricFederatedCancelled
	MetricPhoneCodeSent           = internalmetrics.MetricPhoneCodeSent
	MetricPhoneSendFailure        = internalmetrics.MetricPhoneSendFailure
	MetricPhoneResend             = internalmetrics.MetricPhoneResend
	MetricPhoneAutoVerified       = internalmetrics.MetricPhoneAutoVerified
	MetricPhoneConfirmSuccess     = internalmetrics.MetricPhoneConfirmSuccess
	MetricPhoneConfirmFailure     = internalmetrics.MetricPhoneConfirmFailure
	MetricPhoneExpired            = internalmetrics.MetricPhoneExpired
	MetricPasswordResetRequested  = internalmetrics.MetricPasswordResetRequested
	MetricSessionEstablished      = internalmetrics.MetricSessionEstablished
	MetricSessionEstablishFailure = internalmetrics.MetricSessionEstablishFailure
	MetricSessionCleared          = internalmetrics.MetricSessionCleared
	MetricSessionRevoked          = internalmetrics.MetricSessionRevoked
	MetricSessionRestored         = internalmetrics.MetricSessionRestored
	MetricGuardRedirect           = internalmetrics.MetricGuardRedirect
	MetricSignInLatency           = internalmetrics.MetricSignInLatency
)

// Metrics holds atomic counters and an optional sign-in latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] configured by cfg. When Enabled is false, all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return internalmetrics.New(internalmetrics.Config{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns how many audit events the dispatcher discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}
