package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// Label is one dimension of a labelled counter.
type Label struct {
	Key   string
	Value string
}

// CounterDef binds one engine counter to its label values inside a family.
type CounterDef struct {
	ID     goSession.MetricID
	Labels []Label
}

// CounterFamily is one exported counter whose series are split by provider, outcome or
// event.
type CounterFamily struct {
	Name     string
	Help     string
	Counters []CounterDef
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

func providerOutcome(provider, outcome string) []Label {
	return []Label{{Key: "provider", Value: provider}, {Key: "outcome", Value: outcome}}
}

func event(name string) []Label {
	return []Label{{Key: "event", Value: name}}
}

// CounterFamilies lists every exported counter in a stable order.
var CounterFamilies = []CounterFamily{
	{
		Name: "gosession_signin_total",
		Help: "Sign-in attempts by provider and outcome.",
		Counters: []CounterDef{
			{ID: goSession.MetricPasswordSignInSuccess, Labels: providerOutcome("password", "success")},
			{ID: goSession.MetricPasswordSignInFailure, Labels: providerOutcome("password", "failure")},
			{ID: goSession.MetricFederatedSignInSuccess, Labels: providerOutcome("federated", "success")},
			{ID: goSession.MetricFederatedSignInFailure, Labels: providerOutcome("federated", "failure")},
			{ID: goSession.MetricFederatedCancelled, Labels: providerOutcome("federated", "cancelled")},
			{ID: goSession.MetricPhoneConfirmSuccess, Labels: providerOutcome("phone", "success")},
			{ID: goSession.MetricPhoneConfirmFailure, Labels: providerOutcome("phone", "failure")},
		},
	},
	{
		Name: "gosession_register_total",
		Help: "Registrations by outcome.",
		Counters: []CounterDef{
			{ID: goSession.MetricRegisterSuccess, Labels: providerOutcome("password", "success")},
			{ID: goSession.MetricRegisterFailure, Labels: providerOutcome("password", "failure")},
		},
	},
	{
		Name: "gosession_phone_code_total",
		Help: "Phone verification code events.",
		Counters: []CounterDef{
			{ID: goSession.MetricPhoneCodeSent, Labels: event("sent")},
			{ID: goSession.MetricPhoneSendFailure, Labels: event("send_failure")},
			{ID: goSession.MetricPhoneResend, Labels: event("resend")},
			{ID: goSession.MetricPhoneAutoVerified, Labels: event("auto_verified")},
			{ID: goSession.MetricPhoneExpired, Labels: event("expired")},
		},
	},
	{
		Name:     "gosession_password_reset_requested_total",
		Help:     "Password reset mails requested.",
		Counters: []CounterDef{{ID: goSession.MetricPasswordResetRequested}},
	},
	{
		Name: "gosession_session_total",
		Help: "Session lifecycle events.",
		Counters: []CounterDef{
			{ID: goSession.MetricSessionEstablished, Labels: event("established")},
			{ID: goSession.MetricSessionEstablishFailure, Labels: event("establish_failure")},
			{ID: goSession.MetricSessionCleared, Labels: event("cleared")},
			{ID: goSession.MetricSessionRevoked, Labels: event("revoked")},
			{ID: goSession.MetricSessionRestored, Labels: event("restored")},
		},
	},
	{
		Name:     "gosession_guard_redirect_total",
		Help:     "Navigations redirected by the guard.",
		Counters: []CounterDef{{ID: goSession.MetricGuardRedirect}},
	},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricSignInLatency, Name: "gosession_signin_latency_seconds", Help: "Sign-in latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds in a form usable inside instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, dropping extra buckets and
// zero-filling missing ones.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// AuditDroppedName is the counter for audit events the dispatcher discarded.
const (
	AuditDroppedName = "gosession_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)
