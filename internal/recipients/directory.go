package recipients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"signalpipe/internal/types"
)

// RoleDirectory resolves a role tag ("admin", "operations") to the contacts
// currently holding that role. The mapping is owned by an external system;
// the pipeline only consumes it.
type RoleDirectory interface {
	ResolveRoleRecipients(ctx context.Context, role string) ([]types.Recipient, error)
}

// StaticDirectory is the fallback role table used when no real directory is
// wired in. This is explicit stub behavior, not a placeholder: small
// deployments run on it permanently.
type StaticDirectory struct {
	roles map[string][]string
}

// NewStaticDirectory builds a StaticDirectory from role -> addresses.
func NewStaticDirectory(roles map[string][]string) *StaticDirectory {
	if roles == nil {
		roles = map[string][]string{}
	}
	return &StaticDirectory{roles: roles}
}

// ResolveRoleRecipients returns the configured holders of the role. An
// unknown role yields an empty list, not an error.
func (d *StaticDirectory) ResolveRoleRecipients(_ context.Context, role string) ([]types.Recipient, error) {
	addrs := d.roles[role]
	out := make([]types.Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, types.Recipient{Email: a, Source: types.SourceRole, Role: role})
	}
	return out, nil
}

// HTTPDirectory queries an external role-directory service over HTTP. All
// calls go through a circuit breaker so a slow or failing directory degrades
// role resolution instead of stalling every processing run; the caller
// decides whether to fall back to a StaticDirectory.
type HTTPDirectory struct {
	client   *http.Client
	baseURL  string
	breaker  *gobreaker.CircuitBreaker[[]types.Recipient]
	fallback RoleDirectory
	logger   types.Logger
}

// NewHTTPDirectory creates an HTTPDirectory for the given base URL. The
// fallback directory (usually a StaticDirectory) is consulted when the
// breaker is open or a lookup fails; pass nil to surface lookup errors
// instead.
func NewHTTPDirectory(client *http.Client, baseURL string, fallback RoleDirectory, logger types.Logger) *HTTPDirectory {
	cb := gobreaker.NewCircuitBreaker[[]types.Recipient](gobreaker.Settings{
		Name:        "role-directory",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &HTTPDirectory{
		client:   client,
		baseURL:  baseURL,
		breaker:  cb,
		fallback: fallback,
		logger:   logger,
	}
}

// directoryResponse is the wire shape returned by the directory service.
type directoryResponse struct {
	Recipients []struct {
		Email string `json:"email"`
	} `json:"recipients"`
}

// ResolveRoleRecipients looks up the role over HTTP, falling back to the
// configured fallback directory on any failure.
func (d *HTTPDirectory) ResolveRoleRecipients(ctx context.Context, role string) ([]types.Recipient, error) {
	recipients, err := d.breaker.Execute(func() ([]types.Recipient, error) {
		return d.fetch(ctx, role)
	})
	if err != nil {
		if d.fallback != nil {
			d.logger.Warn("role directory lookup failed, using fallback",
				"role", role,
				"error", err.Error(),
			)
			return d.fallback.ResolveRoleRecipients(ctx, role)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamDirectory,
			fmt.Sprintf("role directory lookup for %q failed", role), err)
	}
	return recipients, nil
}

// fetch performs the actual HTTP round trip.
func (d *HTTPDirectory) fetch(ctx context.Context, role string) ([]types.Recipient, error) {
	u := fmt.Sprintf("%s/roles/%s/recipients", d.baseURL, url.PathEscape(role))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("directory: unexpected status %d for role %q", resp.StatusCode, role)
	}

	var body directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("directory: decode response: %w", err)
	}

	out := make([]types.Recipient, 0, len(body.Recipients))
	for _, r := range body.Recipients {
		out = append(out, types.Recipient{Email: r.Email, Source: types.SourceRole, Role: role})
	}
	return out, nil
}
