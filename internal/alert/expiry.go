package alert

import (
	"fmt"
	"time"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// ExpiryPolicy decides whether an active alert should be deactivated because
// its ExpiresAt has elapsed.
type ExpiryPolicy interface {
	ShouldExpire(a domain.Alert, now time.Time) bool
}

// AdvisoryExpiry never deactivates alerts; ExpiresAt is informational only.
type AdvisoryExpiry struct{}

func (AdvisoryExpiry) ShouldExpire(domain.Alert, time.Time) bool { return false }

// HardExpiry deactivates alerts once ExpiresAt has passed.
type HardExpiry struct{}

func (HardExpiry) ShouldExpire(a domain.Alert, now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// ParseExpiryPolicy selects a policy by name: "advisory" or "hard".
func ParseExpiryPolicy(name string) (ExpiryPolicy, error) {
	switch name {
	case "", "advisory":
		return AdvisoryExpiry{}, nil
	case "hard":
		return HardExpiry{}, nil
	default:
		return nil, fmt.Errorf("unknown expiry policy %q", name)
	}
}
