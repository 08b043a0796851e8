// Package catalog provides access to the per-service tables describing the
// archived meteorological files available to the build pipeline.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/waterinstitute/metget/internal/database"
	"github.com/waterinstitute/metget/internal/sources"
)

// Scope narrows catalog queries for storm-scoped and ensemble services.
type Scope struct {
	Storm          string
	EnsembleMember string
	StormYear      int
	Basin          string
	Advisory       string
}

// Store wraps the catalog tables.
type Store struct {
	db *gorm.DB
}

// NewStore creates a catalog store over an existing connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(svc *sources.Service) *gorm.DB {
	return s.db.Table(svc.Table)
}

func applyScope(q *gorm.DB, svc *sources.Service, scope Scope, prefix string) *gorm.DB {
	if svc.StormScoped && scope.Storm != "" {
		q = q.Where(prefix+"stormname = ?", scope.Storm)
	}
	if svc.IsEnsemble() && scope.EnsembleMember != "" {
		q = q.Where(prefix+"ensemble_member = ?", scope.EnsembleMember)
	}
	return q
}

// Key identifies one file within a service table: the issuing cycle and
// the valid time it covers, plus the storm or ensemble member for the
// services scoped that way.
type Key struct {
	Cycle          time.Time
	ValidTime      time.Time
	Storm          string
	EnsembleMember string
}

func entryKey(e *database.CatalogEntry) Key {
	return Key{
		Cycle:          e.ForecastCycle.UTC(),
		ValidTime:      e.ForecastTime.UTC(),
		Storm:          e.StormName,
		EnsembleMember: e.EnsembleMember,
	}
}

// Exists reports whether a row with the entry's key is already cataloged.
func (s *Store) Exists(svc *sources.Service, e *database.CatalogEntry) (bool, error) {
	q := s.table(svc).
		Where("forecastcycle = ?", e.ForecastCycle).
		Where("forecasttime = ?", e.ForecastTime)
	if svc.StormScoped {
		q = q.Where("stormname = ?", e.StormName)
	}
	if svc.IsEnsemble() {
		q = q.Where("ensemble_member = ?", e.EnsembleMember)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExistingKeys returns the keys of every row whose cycle falls in
// [start, end], so ingest passes can skip files already cataloged without
// a query per candidate.
func (s *Store) ExistingKeys(svc *sources.Service, start, end time.Time) (map[Key]bool, error) {
	var rows []database.CatalogEntry
	err := s.table(svc).
		Select("forecastcycle", "forecasttime", "stormname", "ensemble_member").
		Where("forecastcycle BETWEEN ? AND ?", start, end).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make(map[Key]bool, len(rows))
	for i := range rows {
		keys[entryKey(&rows[i])] = true
	}
	return keys, nil
}

// insertChunkSize caps uncommitted rows per batch insert statement.
const insertChunkSize = 100000

// InsertBatch catalogs a set of rows, skipping files already present, and
// returns how many were actually inserted.
func (s *Store) InsertBatch(svc *sources.Service, entries []database.CatalogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range entries {
		entries[i].Accessed = now
	}
	res := s.table(svc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filepath"}},
		DoNothing: true,
	}).CreateInBatches(&entries, insertChunkSize)
	return res.RowsAffected, res.Error
}

// UpdateOrInsertNhcBtk stores a best-track advisory. Best tracks are
// keyed by storm alone and rewritten in place as the season progresses.
func (s *Store) UpdateOrInsertNhcBtk(e *database.NhcBtkEntry) error {
	var existing database.NhcBtkEntry
	err := s.db.
		Where("storm_year = ?", e.StormYear).
		Where("basin = ?", e.Basin).
		Where("storm = ?", e.Storm).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		e.Accessed = time.Now().UTC()
		return s.db.Create(e).Error
	}
	if err != nil {
		return err
	}
	e.ID = existing.ID
	e.Accessed = time.Now().UTC()
	return s.db.Save(e).Error
}

// UpdateOrInsertNhcFcst stores a forecast advisory, keyed by storm and
// advisory number.
func (s *Store) UpdateOrInsertNhcFcst(e *database.NhcFcstEntry) error {
	var existing database.NhcFcstEntry
	err := s.db.
		Where("storm_year = ?", e.StormYear).
		Where("basin = ?", e.Basin).
		Where("storm = ?", e.Storm).
		Where("advisory = ?", e.Advisory).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		e.Accessed = time.Now().UTC()
		return s.db.Create(e).Error
	}
	if err != nil {
		return err
	}
	e.ID = existing.ID
	e.Accessed = time.Now().UTC()
	return s.db.Save(e).Error
}

// MarkAccessed bumps the accessed time on a set of files.
func (s *Store) MarkAccessed(svc *sources.Service, filepaths []string) error {
	if len(filepaths) == 0 {
		return nil
	}
	return s.table(svc).
		Where("filepath IN ?", filepaths).
		Update("accessed", time.Now().UTC()).Error
}

// Nowcast returns the zero-hour (or normalized tau) snapshot from every
// cycle whose valid time falls in [start, end].
func (s *Store) Nowcast(svc *sources.Service, scope Scope, tau int, start, end time.Time) ([]database.CatalogEntry, error) {
	var rows []database.CatalogEntry
	q := s.table(svc).
		Where("tau = ?", tau).
		Where("forecasttime BETWEEN ? AND ?", start, end)
	q = applyScope(q, svc, scope, "")
	err := q.Order("forecasttime").Find(&rows).Error
	return rows, err
}

// MultipleForecasts returns, for each valid time in [start, end], the row
// with the smallest tau >= the requested tau, i.e. the freshest forecast
// covering that time.
func (s *Store) MultipleForecasts(svc *sources.Service, scope Scope, tau int, start, end time.Time) ([]database.CatalogEntry, error) {
	sub := s.table(svc).
		Select("forecasttime AS ft, MIN(tau) AS min_tau").
		Where("forecasttime BETWEEN ? AND ?", start, end).
		Where("tau >= ?", tau)
	sub = applyScope(sub, svc, scope, "")
	sub = sub.Group("forecasttime")

	var rows []database.CatalogEntry
	q := s.db.Table(svc.Table+" AS t").
		Joins("JOIN (?) AS m ON t.forecasttime = m.ft AND t.tau = m.min_tau", sub).
		Where("t.forecasttime BETWEEN ? AND ?", start, end)
	q = applyScope(q, svc, scope, "t.")
	err := q.Order("t.forecasttime, t.forecastcycle DESC").Find(&rows).Error
	return rows, err
}

// FirstCycle returns the earliest forecast cycle issued inside [start, end].
func (s *Store) FirstCycle(svc *sources.Service, scope Scope, start, end time.Time) (time.Time, bool, error) {
	var row database.CatalogEntry
	q := s.table(svc).
		Where("forecastcycle BETWEEN ? AND ?", start, end)
	q = applyScope(q, svc, scope, "")
	err := q.Order("forecastcycle").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return row.ForecastCycle, true, nil
}

// CycleFiles returns the rows of a single forecast cycle with tau >= the
// requested tau and valid time no later than end.
func (s *Store) CycleFiles(svc *sources.Service, scope Scope, cycle time.Time, tau int, end time.Time) ([]database.CatalogEntry, error) {
	var rows []database.CatalogEntry
	q := s.table(svc).
		Where("forecastcycle = ?", cycle).
		Where("tau >= ?", tau).
		Where("forecasttime <= ?", end)
	q = applyScope(q, svc, scope, "")
	err := q.Order("forecasttime").Find(&rows).Error
	return rows, err
}

// NhcBestTrack returns the best-track row for a storm.
func (s *Store) NhcBestTrack(scope Scope) (*database.NhcBtkEntry, error) {
	var row database.NhcBtkEntry
	err := s.db.
		Where("storm_year = ?", scope.StormYear).
		Where("basin = ?", scope.Basin).
		Where("storm = ?", scope.Storm).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// NhcForecast returns the forecast advisory row for a storm.
func (s *Store) NhcForecast(scope Scope) (*database.NhcFcstEntry, error) {
	var row database.NhcFcstEntry
	err := s.db.
		Where("storm_year = ?", scope.StormYear).
		Where("basin = ?", scope.Basin).
		Where("storm = ?", scope.Storm).
		Where("advisory = ?", scope.Advisory).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Validate sanity checks the scope against what a service requires.
func (s Scope) Validate(svc *sources.Service) error {
	if svc.StormScoped && s.Storm == "" {
		return fmt.Errorf("service %s requires a storm name", svc.Name)
	}
	if svc.IsEnsemble() && s.EnsembleMember == "" {
		return fmt.Errorf("service %s requires an ensemble member", svc.Name)
	}
	if svc.IsEnsemble() && s.EnsembleMember != "" && !svc.ValidEnsembleMember(s.EnsembleMember) {
		return fmt.Errorf("service %s has no ensemble member %s", svc.Name, s.EnsembleMember)
	}
	return nil
}
