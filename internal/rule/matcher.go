package rule

import (
	"bytes"

	"github.com/rs/zerolog"
)

// Matcher selects the single applicable SLA rule for a ticket.
type Matcher struct {
	logger zerolog.Logger
}

// NewMatcher creates a new rule matcher.
func NewMatcher(logger zerolog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With().Str("component", "rule_matcher").Logger(),
	}
}

// Match filters the active rules down to those whose condition sets accept
// the ticket and returns the one with the lowest priority order. Ties in
// priority order are broken by the lowest rule ID so the result is
// deterministic even under misconfiguration. Returns nil when no rule matches.
func (m *Matcher) Match(attrs TicketAttributes, rules []*SLARule) *SLARule {
	var best *SLARule

	for _, r := range rules {
		if r == nil || !r.IsActive {
			continue
		}
		if !m.matches(attrs, r) {
			continue
		}

		if best == nil || precedes(r, best) {
			best = r
		}
	}

	if best == nil {
		m.logger.Debug().
			Str("ticketId", attrs.TicketID).
			Msg("no SLA rule matches ticket")
		return nil
	}

	m.logger.Debug().
		Str("ticketId", attrs.TicketID).
		Str("ruleId", best.ID.String()).
		Str("ruleName", best.Name).
		Int("priorityOrder", best.PriorityOrder).
		Msg("matched SLA rule")

	return best
}

// matches checks every condition dimension. An empty set accepts any value.
func (m *Matcher) matches(attrs TicketAttributes, r *SLARule) bool {
	if r.VIPOverride && !attrs.VIP {
		return false
	}
	if !setAccepts(r.Priorities, attrs.Priority) {
		return false
	}
	if !setAccepts(r.TicketTypes, attrs.TicketType) {
		return false
	}
	if !setAccepts(r.Channels, attrs.Channel) {
		return false
	}
	if !setAccepts(r.AssetImportances, attrs.AssetImportance) {
		return false
	}
	return true
}

// precedes reports whether a takes precedence over b: lower priority order
// first, lowest rule ID on a tie.
func precedes(a, b *SLARule) bool {
	if a.PriorityOrder != b.PriorityOrder {
		return a.PriorityOrder < b.PriorityOrder
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func setAccepts(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
