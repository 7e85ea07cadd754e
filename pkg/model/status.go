package model

import "time"

// SubscriptionStatus is the server's view of the instance subscription.
type SubscriptionStatus struct {
	Active              bool      `json:"active"`
	Plan                string    `json:"plan,omitempty"`
	Organization        string    `json:"organization,omitempty"`
	InstanceType        string    `json:"instanceType,omitempty"`
	ExpiresAt           time.Time `json:"expiresAt,omitempty"`
	MinClientVersion    string    `json:"minClientVersion,omitempty"`
	LatestClientVersion string    `json:"latestClientVersion,omitempty"`
	Messages            []string  `json:"messages,omitempty"`
}

// Expired reports whether the subscription has an expiry date before now.
func (s *SubscriptionStatus) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// LocalPackage is a bundle accepted by the update service.
type LocalPackage struct {
	ID      string    `json:"id"`
	Name    string    `json:"name,omitempty"`
	Version string    `json:"version,omitempty"`
	Path    string    `json:"path"`
	Format  string    `json:"format,omitempty"`
	Size    int64     `json:"size"`
	AddedAt time.Time `json:"addedAt"`
}
