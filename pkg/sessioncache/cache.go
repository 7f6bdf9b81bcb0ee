// Package sessioncache holds reconciliation results server-side so only a
// short opaque handle crosses the web boundary. Entries are immutable: a
// new run always gets a new handle, so readers of an old handle never see
// content change underneath them.
package sessioncache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/models"
)

// DefaultTTL is how long a cached run lives without an explicit clear.
const DefaultTTL = 30 * time.Minute

// Entry is one cached reconciliation run.
type Entry struct {
	Handle    string           `json:"handle"`
	TenantID  string           `json:"tenant_id"`
	Run       *models.MatchRun `json:"run"`
	CreatedAt time.Time        `json:"created_at"`
}

// Cache stores match runs by opaque handle with TTL eviction.
type Cache interface {
	// Put stores the run under a freshly generated handle and returns it.
	Put(ctx context.Context, tenantID string, run *models.MatchRun) (string, error)
	// Get returns the entry for a handle, or nil when the handle is
	// unknown, expired, or belongs to another tenant.
	Get(ctx context.Context, tenantID, handle string) (*Entry, error)
	// Delete removes the entry. Returns true when something was removed.
	Delete(ctx context.Context, tenantID, handle string) (bool, error)
}

// NewHandle generates an opaque cache handle.
func NewHandle() string {
	return uuid.New().String()
}
