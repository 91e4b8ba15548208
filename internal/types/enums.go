package types

import "strings"

// SignalType identifies the category of a domain event. The set of recognized
// types is closed: producers may only emit types listed here. Adding a new
// notification policy for an existing type requires no code change, only a
// new hook row.
type SignalType string

// Form-submission signal types, one per public form.
const (
	SignalGetEstimateFormSubmitted     SignalType = "GET_ESTIMATE_FORM_SUBMITTED"
	SignalContactFormSubmitted         SignalType = "CONTACT_FORM_SUBMITTED"
	SignalServiceRequestFormSubmitted  SignalType = "SERVICE_REQUEST_FORM_SUBMITTED"
	SignalCallbackRequestFormSubmitted SignalType = "CALLBACK_REQUEST_FORM_SUBMITTED"
)

// System signal types.
const (
	SignalStatusChangeContact        SignalType = "STATUS_CHANGE_CONTACT"
	SignalStatusChangeProperty       SignalType = "STATUS_CHANGE_PROPERTY"
	SignalStatusChangeServiceRequest SignalType = "STATUS_CHANGE_SERVICE_REQUEST"
	SignalUserRegistration           SignalType = "USER_REGISTRATION"
	SignalAdminNotification          SignalType = "ADMIN_NOTIFICATION"
)

// knownSignalTypes is the closed registry consulted by the emitter.
var knownSignalTypes = map[SignalType]struct{}{
	SignalGetEstimateFormSubmitted:     {},
	SignalContactFormSubmitted:         {},
	SignalServiceRequestFormSubmitted:  {},
	SignalCallbackRequestFormSubmitted: {},
	SignalStatusChangeContact:          {},
	SignalStatusChangeProperty:         {},
	SignalStatusChangeServiceRequest:   {},
	SignalUserRegistration:             {},
	SignalAdminNotification:            {},
}

// IsValid reports whether the signal type is part of the closed registry.
func (s SignalType) IsValid() bool {
	_, ok := knownSignalTypes[s]
	return ok
}

// StatusChangeSignal maps an entity kind ("property", "service_request", ...)
// to its status-change signal type. The second return value is false when no
// status-change signal exists for the entity kind.
func StatusChangeSignal(entityType string) (SignalType, bool) {
	s := SignalType("STATUS_CHANGE_" + strings.ToUpper(strings.TrimSpace(entityType)))
	if !s.IsValid() {
		return "", false
	}
	return s, true
}

// ChannelType identifies a delivery medium. Unrecognized channel identifiers
// in a hook's channel set are ignored by the queue writer rather than
// rejected, so a hook with a config typo still produces output for its valid
// channels.
type ChannelType string

const (
	ChannelEmail ChannelType = "email"
	ChannelSMS   ChannelType = "sms"
)

// HookPriority orders queue entries for the delivery subsystem. It carries no
// meaning inside the pipeline itself beyond being copied onto the entry.
type HookPriority string

const (
	PriorityLow    HookPriority = "low"
	PriorityMedium HookPriority = "medium"
	PriorityHigh   HookPriority = "high"
)

// OrDefault returns the priority, substituting medium for empty or
// unrecognized values.
func (p HookPriority) OrDefault() HookPriority {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p
	}
	return PriorityMedium
}

// QueueStatus is the lifecycle state of a queue entry. The pipeline only ever
// writes StatusPending; every later transition belongs to the delivery
// subsystem.
type QueueStatus string

const (
	StatusPending QueueStatus = "PENDING"
)

// ConditionOperator is the comparison applied by a hook condition.
type ConditionOperator string

const (
	OpEq       ConditionOperator = "eq"
	OpNe       ConditionOperator = "ne"
	OpGt       ConditionOperator = "gt"
	OpLt       ConditionOperator = "lt"
	OpContains ConditionOperator = "contains"
)

// RecipientSource tags where a resolved recipient address came from.
type RecipientSource string

const (
	SourceStatic  RecipientSource = "static"
	SourceRole    RecipientSource = "role"
	SourceDynamic RecipientSource = "dynamic"
)
