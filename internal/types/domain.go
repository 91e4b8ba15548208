package types

import (
	"fmt"
	"time"
)

// Payload is the arbitrary structured data attached to a signal: string keys
// mapping to primitives, arrays, or nested objects. It is stored as JSONB and
// copied verbatim onto every queue entry produced from the signal.
type Payload map[string]any

// SignalEvent is an immutable record of something that happened. Once
// written, the only field the pipeline ever mutates is Processed (and the
// ClaimedAt lease that guards the transition). Events are never deleted;
// they are retained for audit and debugging.
type SignalEvent struct {
	ID         string     `json:"id"`
	SignalType SignalType `json:"signal_type"`
	Payload    Payload    `json:"payload"`
	EmittedAt  time.Time  `json:"emitted_at"`
	EmittedBy  string     `json:"emitted_by"`
	Source     string     `json:"source"`
	Processed  bool       `json:"processed"`

	// ClaimedAt is set when a processor instance claims the event and
	// cleared (by lease expiry) if that instance dies before finishing.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// HookCondition is a single {field, operator, value} rule. Field is a
// dot-path into the signal payload ("address.city"). All conditions on a
// hook are ANDed; there is no OR or grouping support.
type HookCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// HookConditions is a slice of HookCondition stored as a JSONB column.
type HookConditions []HookCondition

// StringList is a []string stored as a JSONB column.
type StringList []string

// ChannelList is a []ChannelType stored as a JSONB column.
type ChannelList []ChannelType

// NotificationHook binds a signal type to a notification policy: which
// template to render, over which channels, to whom, and under what
// conditions. Hooks are administrator-managed and read-only to the pipeline.
type NotificationHook struct {
	ID               string         `json:"id"`
	SignalType       SignalType     `json:"signal_type"`
	TemplateID       string         `json:"template_id"`
	Enabled          bool           `json:"enabled"`
	Priority         HookPriority   `json:"priority"`
	Channels         ChannelList    `json:"channels"`
	RecipientEmails  StringList     `json:"recipient_emails"`
	RecipientRoles   StringList     `json:"recipient_roles"`
	RecipientDynamic StringList     `json:"recipient_dynamic"`
	Conditions       HookConditions `json:"conditions"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NotificationTemplate is per-channel message content with {{field}}
// placeholders referring to top-level payload keys. Administrator-managed,
// read-only to the pipeline.
type NotificationTemplate struct {
	ID          string      `json:"id"`
	Channel     ChannelType `json:"channel"`
	Subject     string      `json:"subject"`
	ContentHTML string      `json:"content_html"`
	ContentText string      `json:"content_text"`
}

// Recipient is a resolved notification target with provenance.
type Recipient struct {
	Email  string          `json:"email"`
	Source RecipientSource `json:"source"`

	// Role is set when Source is SourceRole; Field (the payload dot-path)
	// is set when Source is SourceDynamic.
	Role  string `json:"role,omitempty"`
	Field string `json:"field,omitempty"`
}

// ChannelDetail is the rendered, channel-scoped slice of a queue entry.
type ChannelDetail struct {
	Enabled    bool        `json:"enabled"`
	Recipients []string    `json:"recipients"`
	Subject    string      `json:"subject,omitempty"`
	Content    string      `json:"content"`
	Status     QueueStatus `json:"status"`
}

// ChannelMap maps channel identifiers to their rendered detail. Stored as a
// JSONB column on the queue entry.
type ChannelMap map[ChannelType]ChannelDetail

// NotificationQueueEntry is the pipeline's terminal output artifact, one per
// (signal, hook) match, handed to the external delivery subsystem with
// Status PENDING. The pipeline never edits an entry after creation.
type NotificationQueueEntry struct {
	ID            string       `json:"id"`
	EventType     SignalType   `json:"event_type"`
	SignalEventID string       `json:"signal_event_id"`
	TemplateID    string       `json:"template_id"`
	Status        QueueStatus  `json:"status"`
	Priority      HookPriority `json:"priority"`
	Channels      ChannelMap   `json:"channels"`
	RecipientIDs  StringList   `json:"recipient_ids"`
	Payload       Payload      `json:"payload"`
	RetryCount    int          `json:"retry_count"`
	CreatedAt     time.Time    `json:"created_at"`
}

// QueueEntryID builds the deterministic queue-entry identifier for a
// (signal, hook) pair. Determinism is what makes queue writes idempotent: a
// signal retried after a partial run upserts the same ID instead of
// duplicating the entry.
func QueueEntryID(signalEventID, hookID string) string {
	return fmt.Sprintf("nq_%s_%s", signalEventID, hookID)
}
