// Package events turns raw terminal reports into resolved, de-duplicated
// attendance transitions.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facegate/internal/cache"
	"facegate/internal/ledger"
	"facegate/internal/models"
	"facegate/internal/store"

	"go.uber.org/zap"
)

// Terminal sub-event codes observed on universal devices. Two families map
// to each direction; everything else passes through untranslated.
var (
	entryCodes = map[int]bool{21: true, 38: true}
	exitCodes  = map[int]bool{22: true, 39: true}
)

const unknownPersonName = "Unknown person"

// RawEvent is what the ingest endpoint extracts from a terminal report.
type RawEvent struct {
	IPAddress  string
	EmployeeNo string
	SubEvent   int
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusIgnored Status = "ignored"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

// Outcome is the in-body response returned to the terminal.
type Outcome struct {
	Status Status `json:"status"`
	Msg    string `json:"msg"`
}

// Store is the authoritative fallback behind the identity cache.
type Store interface {
	DeviceByAddress(ctx context.Context, addr string) (*models.Device, error)
	SiteByID(ctx context.Context, id uint) (*models.Site, error)
	PersonByAccountID(ctx context.Context, accountID string) (*models.Person, error)
}

// Recorder receives accepted events; satisfied by ledger.Writer.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry)
}

type Resolver struct {
	cache    *cache.IdentityCache
	dedup    *cache.DedupGuard
	store    Store
	recorder Recorder
	log      *zap.Logger

	now      func() time.Time
	dispatch func(fn func())
}

func NewResolver(identity *cache.IdentityCache, dedup *cache.DedupGuard, st Store, recorder Recorder, log *zap.Logger) *Resolver {
	return &Resolver{
		cache:    identity,
		dedup:    dedup,
		store:    st,
		recorder: recorder,
		log:      log,
		now:      time.Now,
		dispatch: func(fn func()) { go fn() },
	}
}

// Resolve runs the full pipeline: device resolution, person resolution,
// classification, dedup, async ledger handoff. It never returns an error;
// every path maps to an in-body status so the terminal always gets HTTP 200.
func (r *Resolver) Resolve(ctx context.Context, ev RawEvent) Outcome {
	if ev.IPAddress == "" || ev.EmployeeNo == "" {
		return Outcome{StatusIgnored, "missing terminal address or person id"}
	}

	dev, outcome := r.resolveDevice(ctx, ev.IPAddress)
	if dev == nil {
		return outcome
	}

	person, ok := r.resolvePerson(ctx, ev.EmployeeNo)
	if !ok {
		return Outcome{StatusError, "store unavailable"}
	}

	label := classify(dev.Role, ev.SubEvent)

	if label == ledger.LabelEntry || label == ledger.LabelExit {
		if !r.dedup.ShouldAccept(ctx, ev.EmployeeNo, label) {
			r.log.Info("duplicate transition skipped",
				zap.String("person", person.FullName),
				zap.String("label", label))
			return Outcome{StatusIgnored, "duplicate action skipped"}
		}
	}

	entry := ledger.Entry{
		SheetID:    dev.SheetID,
		SiteName:   dev.SiteName,
		PersonName: person.FullName,
		AccountID:  ev.EmployeeNo,
		Label:      label,
		ChatID:     person.ChatID,
		Time:       r.now(),
	}

	r.log.Info("event accepted",
		zap.String("site", dev.SiteName),
		zap.String("person", person.FullName),
		zap.String("label", label))

	// The terminal's response never waits on spreadsheet or notification I/O.
	r.dispatch(func() {
		recCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.recorder.Record(recCtx, entry)
	})

	return Outcome{StatusSuccess, "processed"}
}

// resolveDevice walks cache then store. Unknown devices discard the event;
// a store hit backfills the cache for the next report from that terminal.
func (r *Resolver) resolveDevice(ctx context.Context, addr string) (*cache.DeviceProjection, Outcome) {
	if proj, ok := r.cache.LookupDevice(ctx, addr); ok {
		return proj, Outcome{}
	}

	dev, err := r.store.DeviceByAddress(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("event from unknown device", zap.String("address", addr))
		return nil, Outcome{StatusIgnored, "unknown device"}
	}
	if err != nil {
		r.log.Error("device lookup failed", zap.String("address", addr), zap.Error(err))
		return nil, Outcome{StatusError, "store unavailable"}
	}

	site, err := r.store.SiteByID(ctx, dev.SiteID)
	if err != nil {
		r.log.Error("site lookup failed", zap.Uint("site_id", dev.SiteID), zap.Error(err))
		return nil, Outcome{StatusError, "site not found"}
	}

	r.cache.StoreDevice(ctx, dev, site)
	return &cache.DeviceProjection{
		Role:     dev.Role,
		SiteID:   site.ID,
		SiteName: site.Name,
		SheetID:  site.AttendanceSheetID,
	}, Outcome{}
}

// resolvePerson walks cache then store. An unmapped person proceeds with a
// sentinel identity: the ledger row still lands, only the notification is
// dropped. A store failure is the one case that discards the event.
func (r *Resolver) resolvePerson(ctx context.Context, accountID string) (*cache.PersonProjection, bool) {
	if proj, ok := r.cache.LookupPerson(ctx, accountID); ok {
		return proj, true
	}

	person, err := r.store.PersonByAccountID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("event for unknown person", zap.String("account_id", accountID))
		return &cache.PersonProjection{FullName: unknownPersonName}, true
	}
	if err != nil {
		r.log.Error("person lookup failed", zap.String("account_id", accountID), zap.Error(err))
		return nil, false
	}

	r.cache.StorePerson(ctx, person)
	return &cache.PersonProjection{FullName: person.FullName, ChatID: person.NotificationChatID}, true
}

func classify(role string, subEvent int) string {
	switch role {
	case models.RoleEntry:
		return ledger.LabelEntry
	case models.RoleExit:
		return ledger.LabelExit
	default:
		switch {
		case entryCodes[subEvent]:
			return ledger.LabelEntry
		case exitCodes[subEvent]:
			return ledger.LabelExit
		default:
			return fmt.Sprintf("PASS(%d)", subEvent)
		}
	}
}
