// Package reconcile is the only path by which scraped facts enter durable
// storage. The controller resolves each candidate's natural key through a
// Lookup, creates the entity when absent, merges it when present, and hands
// back the canonical row so callers can build dependent candidates.
//
// A controller (and its Lookup) is owned by exactly one worker. Workers
// racing on the same natural key are arbitrated by the store's uniqueness
// constraints: the loser's insert comes back as store.ErrDuplicate, which the
// worker retry loop treats as transient since the next attempt will find the
// winner's committed row.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/candidate"
	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/metrics"
	"github.com/opencampus/portal-crawler/internal/store"
)

// Stats accumulates per-batch reconciliation counters.
type Stats struct {
	Added   int
	Updated int
	Ignored int
	Deleted int
}

func (s *Stats) record(changed, created bool) {
	switch {
	case created:
		s.Added++
	case changed:
		s.Updated++
	default:
		s.Ignored++
	}
}

// Controller merges candidates into the store.
type Controller struct {
	store  store.Store
	lookup Lookup
	log    *zap.Logger
}

// New builds a controller over the store and lookup.
func New(st store.Store, lk Lookup, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	metrics.Init()
	return &Controller{store: st, lookup: lk, log: log}
}

// observe feeds the per-kind candidate counters.
func (c *Controller) observe(kind string, created, changed bool) {
	switch {
	case created:
		metrics.ObserveCandidate(kind, "added")
	case changed:
		metrics.ObserveCandidate(kind, "updated")
	default:
		metrics.ObserveCandidate(kind, "ignored")
	}
}

// AddInstitution creates or merges one institution.
func (c *Controller) AddInstitution(ctx context.Context, cand candidate.Institution) (catalog.Institution, error) {
	ent, _, _, err := c.addInstitution(ctx, cand)
	return ent, err
}

func (c *Controller) addInstitution(ctx context.Context, cand candidate.Institution) (catalog.Institution, bool, bool, error) {
	existing, err := c.lookup.Institution(ctx, cand.ID)
	if notFound(err) {
		ent := catalog.Institution{
			ID:            cand.ID,
			Name:          cand.Name,
			Abbreviation:  cand.Abbreviation,
			TemporalRange: cand.TemporalRange,
		}
		if err := c.store.InsertInstitution(ctx, ent); err != nil {
			return catalog.Institution{}, false, false, err
		}
		c.lookup.Note(ent)
		c.observe("institution", true, false)
		c.log.Debug("institution created", zap.Int64("id", ent.ID), zap.String("name", ent.Name))
		return ent, true, false, nil
	}
	if err != nil {
		return catalog.Institution{}, false, false, err
	}

	changed := false
	if cand.Name != "" && cand.Name != existing.Name {
		existing.Name = cand.Name
		changed = true
	}
	if cand.Abbreviation != "" && cand.Abbreviation != existing.Abbreviation {
		existing.Abbreviation = cand.Abbreviation
		changed = true
	}
	before := existing.TemporalRange
	existing.Merge(cand.TemporalRange)
	if existing.TemporalRange != before {
		changed = true
	}
	if changed {
		if err := c.store.UpdateInstitution(ctx, existing); err != nil {
			return catalog.Institution{}, false, false, err
		}
		c.lookup.Note(existing)
	}
	c.observe("institution", false, changed)
	return existing, false, changed, nil
}

// AddInstitutions merges a batch, accumulating counters.
func (c *Controller) AddInstitutions(ctx context.Context, cands []candidate.Institution) (Stats, error) {
	var stats Stats
	for _, cand := range cands {
		_, created, changed, err := c.addInstitution(ctx, cand)
		if err != nil {
			return stats, err
		}
		stats.record(changed, created)
	}
	return stats, nil
}

// AddDepartment creates or merges one department. A department that shows up
// under a different institution than the one on record is a data conflict.
func (c *Controller) AddDepartment(ctx context.Context, cand candidate.Department) (catalog.Department, error) {
	ent, _, _, err := c.addDepartment(ctx, cand)
	return ent, err
}

func (c *Controller) addDepartment(ctx context.Context, cand candidate.Department) (catalog.Department, bool, bool, error) {
	existing, err := c.lookup.Department(ctx, cand.ID)
	if notFound(err) {
		ent := catalog.Department{
			ID:            cand.ID,
			Name:          cand.Name,
			InstitutionID: cand.InstitutionID,
			TemporalRange: cand.TemporalRange,
		}
		if err := c.store.InsertDepartment(ctx, ent); err != nil {
			return catalog.Department{}, false, false, err
		}
		c.lookup.Note(ent)
		c.observe("department", true, false)
		c.log.Debug("department created", zap.Int64("id", ent.ID), zap.String("name", ent.Name))
		return ent, true, false, nil
	}
	if err != nil {
		return catalog.Department{}, false, false, err
	}

	if cand.InstitutionID != 0 && existing.InstitutionID != 0 &&
		cand.InstitutionID != existing.InstitutionID {
		return catalog.Department{}, false, false, conflict(
			fmt.Sprintf("department %d", existing.ID), "institution",
			fmt.Sprintf("%d", existing.InstitutionID),
			fmt.Sprintf("%d", cand.InstitutionID))
	}

	changed := false
	if cand.Name != "" && cand.Name != existing.Name {
		existing.Name = cand.Name
		changed = true
	}
	if existing.InstitutionID == 0 && cand.InstitutionID != 0 {
		existing.InstitutionID = cand.InstitutionID
		changed = true
	}
	before := existing.TemporalRange
	existing.Merge(cand.TemporalRange)
	if existing.TemporalRange != before {
		changed = true
	}
	if changed {
		if err := c.store.UpdateDepartment(ctx, existing); err != nil {
			return catalog.Department{}, false, false, err
		}
		c.lookup.Note(existing)
	}
	c.observe("department", false, changed)
	return existing, false, changed, nil
}

// AddDepartments merges a batch, accumulating counters.
func (c *Controller) AddDepartments(ctx context.Context, cands []candidate.Department) (Stats, error) {
	var stats Stats
	for _, cand := range cands {
		_, created, changed, err := c.addDepartment(ctx, cand)
		if err != nil {
			return stats, err
		}
		stats.record(changed, created)
	}
	return stats, nil
}

// AddClass creates or merges one class. Name and abbreviation are stable
// once set; a candidate disagreeing with the stored value is a conflict.
func (c *Controller) AddClass(ctx context.Context, cand candidate.Class) (catalog.Class, error) {
	existing, err := c.lookup.Class(ctx, cand.ID)
	if notFound(err) {
		ent := catalog.Class{
			ID:           cand.ID,
			DepartmentID: cand.DepartmentID,
			Name:         cand.Name,
			Abbreviation: cand.Abbreviation,
			ECTS:         cand.ECTS,
		}
		if err := c.store.InsertClass(ctx, ent); err != nil {
			return catalog.Class{}, err
		}
		c.lookup.Note(ent)
		c.observe("class", true, false)
		return ent, nil
	}
	if err != nil {
		return catalog.Class{}, err
	}

	if cand.Name != "" && existing.Name != "" && cand.Name != existing.Name {
		return catalog.Class{}, conflict(fmt.Sprintf("class %d", existing.ID),
			"name", existing.Name, cand.Name)
	}
	if cand.Abbreviation != "" && existing.Abbreviation != "" &&
		cand.Abbreviation != existing.Abbreviation {
		return catalog.Class{}, conflict(fmt.Sprintf("class %d", existing.ID),
			"abbreviation", existing.Abbreviation, cand.Abbreviation)
	}

	changed := false
	if existing.Name == "" && cand.Name != "" {
		existing.Name = cand.Name
		changed = true
	}
	if existing.Abbreviation == "" && cand.Abbreviation != "" {
		existing.Abbreviation = cand.Abbreviation
		changed = true
	}
	if cand.ECTS != 0 && cand.ECTS != existing.ECTS {
		existing.ECTS = cand.ECTS
		changed = true
	}
	if cand.DepartmentID != 0 && cand.DepartmentID != existing.DepartmentID {
		existing.DepartmentID = cand.DepartmentID
		changed = true
	}
	if changed {
		if err := c.store.UpdateClass(ctx, existing); err != nil {
			return catalog.Class{}, err
		}
		c.lookup.Note(existing)
	}
	c.observe("class", false, changed)
	return existing, nil
}

// AddClassInstance resolves or creates the occurrence of a class on a
// (year, period).
func (c *Controller) AddClassInstance(ctx context.Context, cand candidate.ClassInstance) (catalog.ClassInstance, error) {
	ent, _, err := c.addClassInstance(ctx, cand)
	return ent, err
}

func (c *Controller) addClassInstance(ctx context.Context, cand candidate.ClassInstance) (catalog.ClassInstance, bool, error) {
	existing, err := c.lookup.ClassInstance(ctx, cand.ClassID, cand.Year, cand.PeriodID)
	if err == nil {
		return existing, false, nil
	}
	if !notFound(err) {
		return catalog.ClassInstance{}, false, err
	}
	ent := catalog.ClassInstance{
		ClassID:  cand.ClassID,
		PeriodID: cand.PeriodID,
		Year:     cand.Year,
	}
	id, err := c.store.InsertClassInstance(ctx, ent)
	if err != nil {
		return catalog.ClassInstance{}, false, err
	}
	ent.ID = id
	c.lookup.Note(ent)
	c.observe("class_instance", true, false)
	return ent, true, nil
}

// AddClassInstances merges a batch, accumulating counters.
func (c *Controller) AddClassInstances(ctx context.Context, cands []candidate.ClassInstance) (Stats, error) {
	var stats Stats
	for _, cand := range cands {
		_, created, err := c.addClassInstance(ctx, cand)
		if err != nil {
			return stats, err
		}
		stats.record(false, created)
	}
	return stats, nil
}

// SetClassInstanceInfo replaces the free-text sections of a class instance.
func (c *Controller) SetClassInstanceInfo(ctx context.Context, ci catalog.ClassInstance, info []byte) error {
	if err := c.store.UpdateClassInstanceInfo(ctx, ci.ID, info); err != nil {
		return err
	}
	ci.Info = info
	c.lookup.Note(ci)
	return nil
}

// AddCourse creates or merges one course. The name is stable once set;
// abbreviation, degree and institution follow later candidates.
func (c *Controller) AddCourse(ctx context.Context, cand candidate.Course) (catalog.Course, error) {
	existing, err := c.lookup.Course(ctx, cand.ID)
	if notFound(err) {
		ent := catalog.Course{
			ID:            cand.ID,
			Name:          cand.Name,
			Abbreviation:  cand.Abbreviation,
			DegreeID:      cand.DegreeID,
			InstitutionID: cand.InstitutionID,
			TemporalRange: cand.TemporalRange,
		}
		if err := c.store.InsertCourse(ctx, ent); err != nil {
			return catalog.Course{}, err
		}
		c.lookup.Note(ent)
		c.observe("course", true, false)
		return ent, nil
	}
	if err != nil {
		return catalog.Course{}, err
	}

	if cand.Name != "" && existing.Name != "" && cand.Name != existing.Name {
		return catalog.Course{}, conflict(fmt.Sprintf("course %d", existing.ID),
			"name", existing.Name, cand.Name)
	}

	changed := false
	if existing.Name == "" && cand.Name != "" {
		existing.Name = cand.Name
		changed = true
	}
	if cand.Abbreviation != "" && cand.Abbreviation != existing.Abbreviation {
		existing.Abbreviation = cand.Abbreviation
		changed = true
	}
	if cand.DegreeID != 0 && cand.DegreeID != existing.DegreeID {
		existing.DegreeID = cand.DegreeID
		changed = true
	}
	if cand.InstitutionID != 0 && cand.InstitutionID != existing.InstitutionID {
		existing.InstitutionID = cand.InstitutionID
		changed = true
	}
	before := existing.TemporalRange
	existing.Merge(cand.TemporalRange)
	if existing.TemporalRange != before {
		changed = true
	}
	if changed {
		if err := c.store.UpdateCourse(ctx, existing); err != nil {
			return catalog.Course{}, err
		}
		c.lookup.Note(existing)
	}
	c.observe("course", false, changed)
	return existing, nil
}

// CourseByAbbreviation resolves a course by abbreviation. Abbreviations get
// reused across eras, so when several courses carry one the caller must
// supply a year and exactly one course's temporal range must contain it.
func (c *Controller) CourseByAbbreviation(ctx context.Context, abbreviation string, year int) (catalog.Course, error) {
	courses, err := c.lookup.CoursesByAbbreviation(ctx, abbreviation)
	if err != nil {
		return catalog.Course{}, err
	}
	switch len(courses) {
	case 0:
		return catalog.Course{}, fmt.Errorf("course %q: %w", abbreviation, store.ErrNotFound)
	case 1:
		return courses[0], nil
	}
	if year == 0 {
		return catalog.Course{}, usage(
			"course abbreviation %q matches %d courses and no year was given",
			abbreviation, len(courses))
	}
	var matches []catalog.Course
	for _, course := range courses {
		if course.Contains(year) {
			matches = append(matches, course)
		}
	}
	if len(matches) != 1 {
		return catalog.Course{}, usage(
			"course abbreviation %q in %d matches %d courses", abbreviation, year, len(matches))
	}
	return matches[0], nil
}
