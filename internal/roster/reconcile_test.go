package roster

import (
	"context"
	"fmt"
	"testing"

	"facegate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	rows []Row
}

func (f *fakeSource) Rows(context.Context) ([]Row, error) { return f.rows, nil }

type fakeWriteback struct {
	calls map[string][]IDCell
	err   error
}

func (f *fakeWriteback) WriteIDs(_ context.Context, sheet string, cells []IDCell) error {
	if f.err != nil {
		return f.err
	}
	if f.calls == nil {
		f.calls = make(map[string][]IDCell)
	}
	f.calls[sheet] = append(f.calls[sheet], cells...)
	return nil
}

type fakeStore struct {
	sites  []models.Site
	people []models.Person
	nextID uint
}

func (f *fakeStore) ListSites(context.Context) ([]models.Site, error) { return f.sites, nil }

func (f *fakeStore) ListPersons(context.Context) ([]models.Person, error) {
	out := make([]models.Person, len(f.people))
	copy(out, f.people)
	return out, nil
}

func (f *fakeStore) SavePersons(_ context.Context, created, updated []*models.Person) error {
	for _, p := range created {
		f.nextID++
		p.ID = f.nextID
		f.people = append(f.people, *p)
	}
	for _, p := range updated {
		for i := range f.people {
			if f.people[i].ID == p.ID {
				f.people[i] = *p
			}
		}
	}
	return nil
}

func newTestReconciler(store *fakeStore, source *fakeSource, wb *fakeWriteback) *Reconciler {
	return NewReconciler(store, source, wb, zap.NewNop())
}

func tashkent() []models.Site {
	return []models.Site{{ID: 1, Name: "Tashkent"}}
}

func TestRecoverExistingID(t *testing.T) {
	store := &fakeStore{
		sites:  tashkent(),
		people: []models.Person{{ID: 7, AccountID: "102", FullName: "aziz karimov", SiteID: 1}},
		nextID: 7,
	}
	source := &fakeSource{rows: []Row{
		{AccountID: "", FullName: "Aziz Karimov", SiteName: "Tashkent", Sheet: "Staff", RowNum: 4},
	}}
	wb := &fakeWriteback{}

	report, err := newTestReconciler(store, source, wb).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Recovered)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Generated)
	require.Len(t, wb.calls["Staff"], 1)
	assert.Equal(t, IDCell{RowNum: 4, AccountID: "102"}, wb.calls["Staff"][0])

	// Name casing differed, so the stored spelling is refreshed.
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, "Aziz Karimov", store.people[0].FullName)
	assert.Equal(t, "102", store.people[0].AccountID, "account id is immutable under reconciliation")
}

func TestGenerateNewIDAndWriteBack(t *testing.T) {
	store := &fakeStore{sites: tashkent()}
	source := &fakeSource{rows: []Row{
		{FullName: "Yangi Xodim", SiteName: "Tashkent", Sheet: "Staff", RowNum: 2},
	}}
	wb := &fakeWriteback{}

	r := newTestReconciler(store, source, wb)
	r.newID = func() string { return "654321" }

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Generated)
	require.Len(t, store.people, 1)
	assert.Equal(t, "654321", store.people[0].AccountID)
	require.Len(t, wb.calls["Staff"], 1)
	assert.Equal(t, "654321", wb.calls["Staff"][0].AccountID)
}

func TestGeneratedIDCollisionRetries(t *testing.T) {
	store := &fakeStore{
		sites:  tashkent(),
		people: []models.Person{{ID: 1, AccountID: "111111", FullName: "Taken One", SiteID: 1}},
		nextID: 1,
	}
	source := &fakeSource{rows: []Row{
		{FullName: "Collider", SiteName: "Tashkent", Sheet: "Staff", RowNum: 2},
		{FullName: "Second Collider", SiteName: "Tashkent", Sheet: "Staff", RowNum: 3},
	}}
	wb := &fakeWriteback{}

	// Adversarial generator: keeps proposing taken ids before a fresh one.
	proposals := []string{"111111", "111111", "222222", "222222", "333333"}
	r := newTestReconciler(store, source, wb)
	r.newID = func() string {
		id := proposals[0]
		proposals = proposals[1:]
		return id
	}

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Generated)
	ids := map[string]bool{}
	for _, p := range store.people {
		assert.False(t, ids[p.AccountID], "duplicate account id %s", p.AccountID)
		ids[p.AccountID] = true
	}
	assert.True(t, ids["222222"])
	assert.True(t, ids["333333"])
}

func TestIDBearingRows(t *testing.T) {
	store := &fakeStore{
		sites: []models.Site{{ID: 1, Name: "Tashkent"}, {ID: 2, Name: "Samarkand"}},
		people: []models.Person{
			{ID: 1, AccountID: "100", FullName: "Known Person", SiteID: 1},
		},
		nextID: 1,
	}
	source := &fakeSource{rows: []Row{
		// Known id, moved site: update.
		{AccountID: "100", FullName: "Known Person", SiteName: "Samarkand", Sheet: "Staff", RowNum: 2},
		// Unknown id: created with the roster's id, no generation.
		{AccountID: "200", FullName: "New Person", SiteName: "Tashkent", Sheet: "Staff", RowNum: 3},
		// Same id later in the pass: already indexed, no duplicate create.
		{AccountID: "200", FullName: "New Person", SiteName: "Tashkent", Sheet: "Staff", RowNum: 4},
	}}
	wb := &fakeWriteback{}

	report, err := newTestReconciler(store, source, wb).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, 0, report.Recovered)
	assert.Empty(t, wb.calls)
	assert.Equal(t, uint(2), store.people[0].SiteID)
}

func TestUnmatchedSitesReportedOnce(t *testing.T) {
	store := &fakeStore{sites: tashkent()}
	source := &fakeSource{rows: []Row{
		{FullName: "Person A", SiteName: "Bukhara", Sheet: "Staff", RowNum: 2},
		{FullName: "Person B", SiteName: "Bukhara", Sheet: "Staff", RowNum: 3},
	}}
	wb := &fakeWriteback{}

	report, err := newTestReconciler(store, source, wb).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bukhara"}, report.UnmatchedSites)
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, store.people)
}

func TestEmptyNameRowsSkipped(t *testing.T) {
	store := &fakeStore{sites: tashkent()}
	source := &fakeSource{rows: []Row{
		{FullName: "", SiteName: "Tashkent", Sheet: "Staff", RowNum: 2},
		{FullName: "   ", SiteName: "Tashkent", Sheet: "Staff", RowNum: 3},
	}}
	wb := &fakeWriteback{}

	report, err := newTestReconciler(store, source, wb).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Report{}, report)
	assert.Empty(t, store.people)
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := &fakeStore{sites: []models.Site{{ID: 1, Name: "Tashkent"}, {ID: 2, Name: "Samarkand"}}}
	rows := []Row{
		{AccountID: "500", FullName: "Imported Person", SiteName: "Tashkent", Sheet: "Staff", RowNum: 2},
		{FullName: "Generated Person", SiteName: "Samarkand", Sheet: "Staff", RowNum: 3},
		{FullName: "Another Person", SiteName: "Tashkent", Sheet: "Branch", RowNum: 2},
	}
	source := &fakeSource{rows: rows}
	wb := &fakeWriteback{}

	seq := 0
	r := newTestReconciler(store, source, wb)
	r.newID = func() string { seq++; return fmt.Sprintf("%06d", seq) }

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 2, first.Generated)

	// Apply the writebacks to the roster, as the spreadsheet now carries them.
	for sheet, cells := range wb.calls {
		for _, cell := range cells {
			for i := range rows {
				if rows[i].Sheet == sheet && rows[i].RowNum == cell.RowNum {
					rows[i].AccountID = cell.AccountID
				}
			}
		}
	}
	source.rows = rows
	wb.calls = nil

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Report{}, second, "second pass on own output must be a no-op")
	assert.Empty(t, wb.calls)
	assert.Len(t, store.people, 3)
}

func TestWritebackFailureDoesNotBlockCommit(t *testing.T) {
	store := &fakeStore{sites: tashkent()}
	source := &fakeSource{rows: []Row{
		{FullName: "Someone New", SiteName: "Tashkent", Sheet: "Staff", RowNum: 2},
	}}
	wb := &fakeWriteback{err: fmt.Errorf("quota exceeded")}

	report, err := newTestReconciler(store, source, wb).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Len(t, store.people, 1, "relational commit survives roster write failure")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "azizkarimov", normalize("Aziz Karimov"))
	assert.Equal(t, "azizkarimov", normalize("  aziz   KARIMOV "))
	assert.Equal(t, "", normalize("   "))
}

func TestRandomIDShape(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := randomID()
		assert.Len(t, id, generatedIDLen)
		for _, r := range id {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}
