package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"facegate/internal/cache"
	"facegate/internal/ledger"
	"facegate/internal/models"
	"facegate/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	devices map[string]*models.Device
	sites   map[uint]*models.Site
	persons map[string]*models.Person

	deviceQueries int
	personQueries int
	failing       bool
}

func (f *fakeStore) DeviceByAddress(_ context.Context, addr string) (*models.Device, error) {
	f.deviceQueries++
	if f.failing {
		return nil, errors.New("database is locked")
	}
	if d, ok := f.devices[addr]; ok {
		return d, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) SiteByID(_ context.Context, id uint) (*models.Site, error) {
	if s, ok := f.sites[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) PersonByAccountID(_ context.Context, accountID string) (*models.Person, error) {
	f.personQueries++
	if f.failing {
		return nil, errors.New("database is locked")
	}
	if p, ok := f.persons[accountID]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

type fakeRecorder struct {
	entries []ledger.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e ledger.Entry) {
	f.entries = append(f.entries, e)
}

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestResolver(st *fakeStore) (*Resolver, *fakeRecorder) {
	log := zap.NewNop()
	rec := &fakeRecorder{}
	r := NewResolver(
		cache.NewIdentityCache(cache.NewMemoryBackend(), log),
		cache.NewDedupGuard(cache.NewMemoryBackend(), log),
		st, rec, log)
	r.now = func() time.Time { return testTime }
	r.dispatch = func(fn func()) { fn() }
	return r, rec
}

func storeWithEntryDevice() *fakeStore {
	return &fakeStore{
		devices: map[string]*models.Device{
			"10.0.0.5": {IPAddress: "10.0.0.5", SiteID: 1, Role: models.RoleEntry},
		},
		sites: map[uint]*models.Site{
			1: {ID: 1, Name: "Tashkent", AttendanceSheetID: "sheet-1"},
		},
		persons: map[string]*models.Person{
			"571022": {AccountID: "571022", FullName: "Aziz Karimov", NotificationChatID: 42},
		},
	}
}

func TestResolveMalformedEvent(t *testing.T) {
	r, rec := newTestResolver(storeWithEntryDevice())

	out := r.Resolve(context.Background(), RawEvent{IPAddress: "", EmployeeNo: "571022"})
	assert.Equal(t, StatusIgnored, out.Status)

	out = r.Resolve(context.Background(), RawEvent{IPAddress: "10.0.0.5", EmployeeNo: ""})
	assert.Equal(t, StatusIgnored, out.Status)
	assert.Empty(t, rec.entries)
}

func TestResolveUnknownDeviceDiscards(t *testing.T) {
	r, rec := newTestResolver(storeWithEntryDevice())

	out := r.Resolve(context.Background(), RawEvent{IPAddress: "10.9.9.9", EmployeeNo: "571022"})
	assert.Equal(t, StatusIgnored, out.Status)
	assert.Equal(t, "unknown device", out.Msg)
	assert.Empty(t, rec.entries)
}

func TestResolveEntryThenDuplicate(t *testing.T) {
	r, rec := newTestResolver(storeWithEntryDevice())
	ev := RawEvent{IPAddress: "10.0.0.5", EmployeeNo: "571022"}

	out := r.Resolve(context.Background(), ev)
	assert.Equal(t, StatusSuccess, out.Status)
	require.Len(t, rec.entries, 1)

	e := rec.entries[0]
	assert.Equal(t, "Aziz Karimov", e.PersonName)
	assert.Equal(t, "571022", e.AccountID)
	assert.Equal(t, ledger.LabelEntry, e.Label)
	assert.Equal(t, "sheet-1", e.SheetID)
	assert.Equal(t, int64(42), e.ChatID)
	assert.Equal(t, testTime, e.Time)

	// Identical event again: the dedup guard rejects, no second row.
	out = r.Resolve(context.Background(), ev)
	assert.Equal(t, StatusIgnored, out.Status)
	assert.Len(t, rec.entries, 1)
}

func TestResolveBackfillsCache(t *testing.T) {
	st := storeWithEntryDevice()
	r, _ := newTestResolver(st)
	ev := RawEvent{IPAddress: "10.0.0.5", EmployeeNo: "571022"}

	r.Resolve(context.Background(), ev)
	r.Resolve(context.Background(), ev)

	assert.Equal(t, 1, st.deviceQueries, "second lookup must hit the cache")
	assert.Equal(t, 1, st.personQueries, "second lookup must hit the cache")
}

func TestResolveUnknownPersonUsesSentinel(t *testing.T) {
	st := storeWithEntryDevice()
	r, rec := newTestResolver(st)

	out := r.Resolve(context.Background(), RawEvent{IPAddress: "10.0.0.5", EmployeeNo: "999999"})
	assert.Equal(t, StatusSuccess, out.Status)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "Unknown person", rec.entries[0].PersonName)
	assert.Equal(t, "999999", rec.entries[0].AccountID)
	assert.Zero(t, rec.entries[0].ChatID)
}

func TestResolveStoreDownDiscards(t *testing.T) {
	r, rec := newTestResolver(&fakeStore{failing: true})

	out := r.Resolve(context.Background(), RawEvent{IPAddress: "10.0.0.5", EmployeeNo: "571022"})
	assert.Equal(t, StatusError, out.Status)
	assert.Empty(t, rec.entries)
}

func TestResolveUniversalDeviceSubCodes(t *testing.T) {
	st := storeWithEntryDevice()
	st.devices["10.0.0.5"].Role = models.RoleUniversal
	r, rec := newTestResolver(st)

	out := r.Resolve(context.Background(), RawEvent{IPAddress: "10.0.0.5", EmployeeNo: "571022", SubEvent: 21})
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, ledger.LabelEntry, rec.entries[0].Label)

	out = r.Resolve(context.Background(), RawEvent{IPAddress: "10.0.0.5", EmployeeNo: "571022", SubEvent: 22})
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, ledger.LabelExit, rec.entries[1].Label)
}

func TestResolvePassThroughBypassesDedup(t *testing.T) {
	st := storeWithEntryDevice()
	st.devices["10.0.0.5"].Role = models.RoleUniversal
	r, rec := newTestResolver(st)
	ev := RawEvent{IPAddress: "10.0.0.5", EmployeeNo: "571022", SubEvent: 75}

	out := r.Resolve(context.Background(), ev)
	require.Equal(t, StatusSuccess, out.Status)
	out = r.Resolve(context.Background(), ev)
	require.Equal(t, StatusSuccess, out.Status, "pass-through labels are never deduplicated")

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "PASS(75)", rec.entries[0].Label)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "ENTRY", classify(models.RoleEntry, 0))
	assert.Equal(t, "EXIT", classify(models.RoleExit, 99))
	assert.Equal(t, "ENTRY", classify(models.RoleUniversal, 21))
	assert.Equal(t, "ENTRY", classify(models.RoleUniversal, 38))
	assert.Equal(t, "EXIT", classify(models.RoleUniversal, 22))
	assert.Equal(t, "EXIT", classify(models.RoleUniversal, 39))
	assert.Equal(t, "PASS(75)", classify(models.RoleUniversal, 75))
}
