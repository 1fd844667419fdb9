package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"facegate/internal/models"

	"go.uber.org/zap"
)

// IdentityTTL bounds how long device and person projections live. Entries are
// never invalidated on edits; staleness up to this window is accepted.
const IdentityTTL = time.Hour

// DeviceProjection is the slice of Device+Site state the event path needs.
type DeviceProjection struct {
	Role     string `json:"role"`
	SiteID   uint   `json:"site_id"`
	SiteName string `json:"site_name"`
	SheetID  string `json:"sheet_id"`
}

// PersonProjection is the slice of Person state the event path needs.
type PersonProjection struct {
	FullName string `json:"full_name"`
	ChatID   int64  `json:"chat_id"`
}

// IdentityCache keeps device and person projections keyed by terminal address
// and account id. Lookups never fail: any backend trouble is logged and
// reported as a miss so callers fall through to the store.
type IdentityCache struct {
	backend Backend
	log     *zap.Logger
	ttl     time.Duration
}

func NewIdentityCache(backend Backend, log *zap.Logger) *IdentityCache {
	return &IdentityCache{backend: backend, log: log, ttl: IdentityTTL}
}

func (c *IdentityCache) LookupDevice(ctx context.Context, addr string) (*DeviceProjection, bool) {
	var p DeviceProjection
	if !c.get(ctx, "device:"+addr, &p) {
		return nil, false
	}
	return &p, true
}

func (c *IdentityCache) StoreDevice(ctx context.Context, dev *models.Device, site *models.Site) {
	c.set(ctx, "device:"+dev.IPAddress, DeviceProjection{
		Role:     dev.Role,
		SiteID:   site.ID,
		SiteName: site.Name,
		SheetID:  site.AttendanceSheetID,
	})
}

func (c *IdentityCache) LookupPerson(ctx context.Context, accountID string) (*PersonProjection, bool) {
	var p PersonProjection
	if !c.get(ctx, "person:"+accountID, &p) {
		return nil, false
	}
	return &p, true
}

func (c *IdentityCache) StorePerson(ctx context.Context, person *models.Person) {
	c.set(ctx, "person:"+person.AccountID, PersonProjection{
		FullName: person.FullName,
		ChatID:   person.NotificationChatID,
	})
}

func (c *IdentityCache) get(ctx context.Context, key string, out any) bool {
	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Warn("identity cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.log.Warn("identity cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *IdentityCache) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("identity cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	// Population is idempotent; a concurrent writer racing here is fine.
	if err := c.backend.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.log.Warn("identity cache set failed", zap.String("key", key), zap.Error(err))
	}
}
