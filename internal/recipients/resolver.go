// Package recipients resolves a hook's recipient configuration into a
// concrete, deduplicated address list. Three strategies are merged: static
// addresses listed on the hook, holders of role tags looked up in an
// external directory, and addresses extracted from the signal payload.
package recipients

import (
	"context"
	"fmt"

	"signalpipe/internal/rules"
	"signalpipe/internal/types"
)

// Resolver merges static, role-based, and payload-derived recipients.
type Resolver struct {
	directory RoleDirectory
	logger    types.Logger
}

// NewResolver creates a Resolver backed by the given role directory.
func NewResolver(directory RoleDirectory, logger types.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    logger,
	}
}

// Resolve produces the recipient list for one hook evaluation against one
// signal payload.
//
// Strategy order is static, then roles, then dynamic fields. Recipients are
// deduplicated by normalized (lowercased, trimmed) address; the first
// occurrence wins, so a person who is both a static recipient and a role
// holder keeps the static provenance tag. Deduplication is per resolution:
// the same address may still appear on queue entries produced by different
// hooks for the same signal, which is deliberate (each hook is an
// independent policy).
//
// Dynamic fields use the same dot-path lookup as condition evaluation, and
// values that are missing or do not look like an address are skipped
// silently: a payload without an email in it is an expected shape, not an
// error. Role lookup failures abort the resolution with an error so the
// processor can record a hook-level failure.
func (r *Resolver) Resolve(ctx context.Context, hook *types.NotificationHook, payload types.Payload) ([]types.Recipient, error) {
	var out []types.Recipient
	seen := map[string]struct{}{}

	add := func(rec types.Recipient) {
		key := types.NormalizeEmail(rec.Email)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}

	for _, email := range hook.RecipientEmails {
		add(types.Recipient{Email: email, Source: types.SourceStatic})
	}

	for _, role := range hook.RecipientRoles {
		holders, err := r.directory.ResolveRoleRecipients(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("Resolve: role %q: %w", role, err)
		}
		for _, rec := range holders {
			add(rec)
		}
	}

	for _, field := range hook.RecipientDynamic {
		value, ok := rules.Lookup(payload, field)
		if !ok {
			continue
		}
		addr, ok := value.(string)
		if !ok || !types.IsEmailAddress(addr) {
			r.logger.Warn("dynamic recipient field did not resolve to an address",
				"hook_id", hook.ID,
				"field", field,
			)
			continue
		}
		add(types.Recipient{Email: addr, Source: types.SourceDynamic, Field: field})
	}

	return out, nil
}

// Addresses flattens a recipient list to bare email strings, preserving
// order. Used when building per-channel recipient lists on queue entries.
func Addresses(recipients []types.Recipient) []string {
	out := make([]string, len(recipients))
	for i, r := range recipients {
		out[i] = r.Email
	}
	return out
}
