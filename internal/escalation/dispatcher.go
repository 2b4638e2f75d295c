package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/sla-engine/internal/rule"
)

// Recipient is a concrete notification target resolved from a RecipientSpec.
type Recipient struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Address string `json:"address,omitempty"`
}

// RecipientResolver resolves a recipient specification against an external
// directory (org chart, team roster).
type RecipientResolver interface {
	Resolve(ctx context.Context, spec rule.RecipientSpec) ([]Recipient, error)
}

// Dispatcher delivers an escalation event to its recipients. Dispatch is
// called outside any per-ticket lock; implementations may block on I/O.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event, recipients []Recipient) error
}

// StaticRecipientResolver resolves specs from a fixed roster keyed by
// recipient type and role. Deployments without an external directory
// service supply the roster as a JSON document via LoadRosterFile.
type StaticRecipientResolver struct {
	roster map[string][]Recipient
}

// ParseRoster decodes a roster document mapping "type" or "type/role" keys
// to recipient lists, as consumed by NewStaticRecipientResolver.
func ParseRoster(data []byte) (map[string][]Recipient, error) {
	var roster map[string][]Recipient
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse escalation roster: %w", err)
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("escalation roster is empty")
	}
	return roster, nil
}

// LoadRosterFile reads and parses a roster document from disk.
func LoadRosterFile(path string) (map[string][]Recipient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read escalation roster: %w", err)
	}
	return ParseRoster(data)
}

// NewStaticRecipientResolver creates a resolver over a fixed roster. Keys
// are "type" or "type/role", lowercase.
func NewStaticRecipientResolver(roster map[string][]Recipient) *StaticRecipientResolver {
	normalized := make(map[string][]Recipient, len(roster))
	for k, v := range roster {
		normalized[strings.ToLower(k)] = v
	}
	return &StaticRecipientResolver{roster: normalized}
}

// Resolve returns up to spec.NumberOfRecipients entries for the spec's type
// and role. An unknown type/role pair is a resolution failure.
func (r *StaticRecipientResolver) Resolve(ctx context.Context, spec rule.RecipientSpec) ([]Recipient, error) {
	key := strings.ToLower(spec.RecipientType)
	if spec.RecipientRole != "" {
		key = key + "/" + strings.ToLower(spec.RecipientRole)
	}

	recipients, ok := r.roster[key]
	if !ok || len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients for %q", key)
	}

	n := spec.NumberOfRecipients
	if n <= 0 || n > len(recipients) {
		n = len(recipients)
	}
	return append([]Recipient(nil), recipients[:n]...), nil
}

// LogDispatcher writes escalation events to the structured log instead of an
// external channel. It is the default dispatcher.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher creates a log-only dispatcher.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{
		logger: logger.With().Str("component", "escalation_dispatcher").Logger(),
	}
}

// Dispatch logs the event and its recipients.
func (d *LogDispatcher) Dispatch(ctx context.Context, event Event, recipients []Recipient) error {
	ids := make([]string, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ID
	}

	d.logger.Info().
		Str("ticketId", event.TicketID).
		Str("escalationRuleId", event.EscalationRuleID.String()).
		Int("level", event.Level).
		Int("repeatIndex", event.RepeatIndex).
		Str("triggerType", string(event.TriggerType)).
		Strs("recipients", ids).
		Msg("escalation dispatched")
	return nil
}

// WebhookDispatcher posts escalation events as JSON to a configured endpoint.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookDispatcher creates a dispatcher that posts to url.
func NewWebhookDispatcher(url string, timeout time.Duration, logger zerolog.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "escalation_dispatcher").Logger(),
	}
}

type webhookPayload struct {
	Event      Event       `json:"event"`
	Recipients []Recipient `json:"recipients"`
}

// Dispatch posts the event to the webhook endpoint. Non-2xx responses are
// errors.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event Event, recipients []Recipient) error {
	body, err := json.Marshal(webhookPayload{Event: event, Recipients: recipients})
	if err != nil {
		return fmt.Errorf("marshal escalation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build escalation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post escalation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("escalation endpoint returned %d", resp.StatusCode)
	}

	d.logger.Debug().
		Str("ticketId", event.TicketID).
		Int("level", event.Level).
		Int("status", resp.StatusCode).
		Msg("escalation delivered")
	return nil
}

var (
	_ RecipientResolver = (*StaticRecipientResolver)(nil)
	_ Dispatcher        = (*LogDispatcher)(nil)
	_ Dispatcher        = (*WebhookDispatcher)(nil)
)
