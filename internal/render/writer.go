package render

import (
	"time"

	"signalpipe/internal/types"
)

// BuildQueueEntry constructs the NotificationQueueEntry for one (signal,
// hook) match. The entry ID is deterministic so a reprocessed signal upserts
// rather than duplicates.
//
// The channels map carries one rendered ChannelDetail per recognized channel
// in the hook's channel set: email gets the rendered subject and HTML body,
// sms gets the rendered text body. Unrecognized channel identifiers are
// skipped without error.
func BuildQueueEntry(
	signal *types.SignalEvent,
	hook *types.NotificationHook,
	template *types.NotificationTemplate,
	recipients []string,
	now time.Time,
) *types.NotificationQueueEntry {
	channels := types.ChannelMap{}
	for _, ch := range hook.Channels {
		switch ch {
		case types.ChannelEmail:
			channels[types.ChannelEmail] = types.ChannelDetail{
				Enabled:    true,
				Recipients: recipients,
				Subject:    Render(template.Subject, signal.Payload),
				Content:    Render(template.ContentHTML, signal.Payload),
				Status:     types.StatusPending,
			}
		case types.ChannelSMS:
			channels[types.ChannelSMS] = types.ChannelDetail{
				Enabled:    true,
				Recipients: recipients,
				Content:    Render(template.ContentText, signal.Payload),
				Status:     types.StatusPending,
			}
		}
	}

	return &types.NotificationQueueEntry{
		ID:            types.QueueEntryID(signal.ID, hook.ID),
		EventType:     signal.SignalType,
		SignalEventID: signal.ID,
		TemplateID:    template.ID,
		Status:        types.StatusPending,
		Priority:      hook.Priority.OrDefault(),
		Channels:      channels,
		RecipientIDs:  types.StringList(recipients),
		Payload:       signal.Payload,
		RetryCount:    0,
		CreatedAt:     now,
	}
}
