// Package notify renders alert messages and fans broadcasts out to every
// configured delivery channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// Format renders the message body for a broadcast.
func Format(a domain.Alert, purpose domain.AudiencePurpose) string {
	switch purpose {
	case domain.PurposeFollowUp:
		return FormatFollowUp(a)
	case domain.PurposeResolved:
		return fmt.Sprintf("RESOLVED: flooding in %s has cleared (road %s).", a.AreaName, a.RoadState)
	case domain.PurposeUpdate:
		return "UPDATE " + FormatAlert(a)
	default:
		return FormatAlert(a)
	}
}

// FormatAlert renders the headline, evidence and suggested actions of an alert.
func FormatAlert(a domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FLOOD ALERT [%s] %s\n", strings.ToUpper(a.Severity.String()), a.AreaName)
	fmt.Fprintf(&b, "Road: %s\n", a.RoadState)
	fmt.Fprintf(&b, "Confidence %d: %s\n", a.ConfidenceScore, a.Explanation)
	if len(a.SuggestedActions) > 0 {
		b.WriteString("What to do:\n")
		for _, action := range a.SuggestedActions {
			fmt.Fprintf(&b, "- %s\n", action)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatFollowUp renders the "still ongoing?" prompt.
func FormatFollowUp(a domain.Alert) string {
	return fmt.Sprintf("Is flooding still ongoing in %s? (alert %s)", a.AreaName, a.ID)
}

// Fanout broadcasts to several notifiers and sums their results.
type Fanout struct {
	notifiers []domain.Notifier
}

// NewFanout creates a Fanout. Nil notifiers are skipped.
func NewFanout(notifiers ...domain.Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len returns the number of wired notifiers.
func (f *Fanout) Len() int { return len(f.notifiers) }

// Broadcast implements domain.Notifier.
func (f *Fanout) Broadcast(ctx context.Context, a domain.Alert, aud domain.Audience) domain.BroadcastResult {
	var total domain.BroadcastResult
	for _, n := range f.notifiers {
		res := n.Broadcast(ctx, a, aud)
		total.SentCount += res.SentCount
		total.Errors = append(total.Errors, res.Errors...)
	}
	return total
}
