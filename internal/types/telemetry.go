package types

// Telemetry metric names for CloudWatch. All components MUST use these
// constants.
const (
	MetricSignalsClaimed       = "SignalsClaimed"
	MetricSignalsProcessed     = "SignalsProcessed"
	MetricNotificationsCreated = "NotificationsCreated"
	MetricHookErrors           = "HookErrors"
	MetricRunDuration          = "ProcessingRunDuration"

	// Dimension keys
	DimSignalType = "SignalType"

	// Metric namespace
	MetricNamespace = "SignalPipe"
)
