// Package roster reconciles the external roster spreadsheet with the
// relational store: it matches rows to known people, assigns stable account
// ids where missing, and writes assigned ids back into the roster.
package roster

import (
	"context"
	"math/rand"
	"sort"
	"strings"

	"facegate/internal/models"

	"go.uber.org/zap"
)

// Row is one roster line, transient to a reconciliation pass. Sheet and
// RowNum locate the cell the account id gets written back to.
type Row struct {
	AccountID string
	FullName  string
	SiteName  string
	Phone     string
	Sheet     string
	RowNum    int
}

// IDCell is a pending account-id writeback for a roster cell.
type IDCell struct {
	RowNum    int
	AccountID string
}

// Source yields the roster rows of a pass.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
}

// Writeback applies account-id cell updates, batched per worksheet.
type Writeback interface {
	WriteIDs(ctx context.Context, sheet string, cells []IDCell) error
}

// Store is the slice of the relational store a pass needs.
type Store interface {
	ListSites(ctx context.Context) ([]models.Site, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	SavePersons(ctx context.Context, created, updated []*models.Person) error
}

// Report summarizes a reconciliation pass.
type Report struct {
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Generated      int      `json:"generated"`
	Recovered      int      `json:"recovered"`
	UnmatchedSites []string `json:"unmatched_sites,omitempty"`
}

const generatedIDLen = 6

type Reconciler struct {
	store     Store
	source    Source
	writeback Writeback
	log       *zap.Logger

	// newID produces candidate account ids; swapped in tests.
	newID func() string
}

func NewReconciler(store Store, source Source, writeback Writeback, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		source:    source,
		writeback: writeback,
		log:       log,
		newID:     randomID,
	}
}

// Run executes one full pass: read the roster, match against the store,
// write assigned ids back per worksheet, then commit the relational changes
// in a single transaction. Roster writeback failures are logged and do not
// roll back the commit; the next pass heals the gap.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	rows, err := r.source.Rows(ctx)
	if err != nil {
		return nil, err
	}
	sites, err := r.store.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	people, err := r.store.ListPersons(ctx)
	if err != nil {
		return nil, err
	}

	report, created, updated, cells := r.reconcile(rows, sites, people)

	for _, sheet := range sortedKeys(cells) {
		if err := r.writeback.WriteIDs(ctx, sheet, cells[sheet]); err != nil {
			r.log.Error("roster writeback failed",
				zap.String("sheet", sheet),
				zap.Int("cells", len(cells[sheet])),
				zap.Error(err))
		}
	}

	if err := r.store.SavePersons(ctx, created, updated); err != nil {
		return nil, err
	}

	r.log.Info("reconciliation finished",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("generated", report.Generated),
		zap.Int("recovered", report.Recovered),
		zap.Strings("unmatched_sites", report.UnmatchedSites))
	return report, nil
}

// reconcile is the pure matching pass. It indexes existing people two ways,
// by account id and by (site, normalized name), and mutates both indexes in
// lockstep on every create so later rows of the same pass see earlier ones.
//
// The normalized-name key is the only fuzzy match and is known to collide
// when two employees of one site share a normalized name; the first match
// wins and no tie-break exists.
func (r *Reconciler) reconcile(rows []Row, sites []models.Site, people []models.Person) (*Report, []*models.Person, []*models.Person, map[string][]IDCell) {
	siteByName := make(map[string]*models.Site, len(sites))
	for i := range sites {
		siteByName[sites[i].Name] = &sites[i]
	}

	byID := make(map[string]*models.Person, len(people))
	byName := make(map[nameKey]*models.Person, len(people))
	for i := range people {
		p := &people[i]
		byID[p.AccountID] = p
		byName[nameKey{p.SiteID, normalize(p.FullName)}] = p
	}

	report := &Report{}
	unmatched := make(map[string]bool)
	var created, updated []*models.Person
	updatedSet := make(map[*models.Person]bool)
	cells := make(map[string][]IDCell)

	markUpdated := func(p *models.Person) {
		if !updatedSet[p] {
			updatedSet[p] = true
			updated = append(updated, p)
		}
	}

	for _, row := range rows {
		if strings.TrimSpace(row.FullName) == "" {
			continue
		}

		site, ok := siteByName[row.SiteName]
		if !ok {
			if !unmatched[row.SiteName] {
				unmatched[row.SiteName] = true
				report.UnmatchedSites = append(report.UnmatchedSites, row.SiteName)
			}
			continue
		}

		if row.AccountID != "" {
			if existing, ok := byID[row.AccountID]; ok {
				if existing.FullName != row.FullName || existing.SiteID != site.ID {
					existing.FullName = row.FullName
					existing.SiteID = site.ID
					markUpdated(existing)
					report.Updated++
				}
			} else {
				p := &models.Person{AccountID: row.AccountID, FullName: row.FullName, SiteID: site.ID, Phone: row.Phone}
				created = append(created, p)
				byID[p.AccountID] = p
				byName[nameKey{p.SiteID, normalize(p.FullName)}] = p
				report.Created++
			}
			continue
		}

		key := nameKey{site.ID, normalize(row.FullName)}
		if existing, ok := byName[key]; ok {
			cells[row.Sheet] = append(cells[row.Sheet], IDCell{RowNum: row.RowNum, AccountID: existing.AccountID})
			report.Recovered++
			if existing.FullName != row.FullName {
				existing.FullName = row.FullName
				markUpdated(existing)
				report.Updated++
			}
		} else {
			id := r.newID()
			for byID[id] != nil {
				id = r.newID()
			}
			p := &models.Person{AccountID: id, FullName: row.FullName, SiteID: site.ID, Phone: row.Phone}
			created = append(created, p)
			byID[id] = p
			byName[key] = p
			cells[row.Sheet] = append(cells[row.Sheet], IDCell{RowNum: row.RowNum, AccountID: id})
			report.Created++
			report.Generated++
		}
	}

	return report, created, updated, cells
}

type nameKey struct {
	siteID uint
	name   string
}

// normalize lower-cases and strips all whitespace, the sole fuzzy-match key.
func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

func randomID() string {
	const digits = "0123456789"
	b := make([]byte, generatedIDLen)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}

func sortedKeys(m map[string][]IDCell) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
