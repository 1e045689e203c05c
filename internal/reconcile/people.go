package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/candidate"
	"github.com/opencampus/portal-crawler/internal/catalog"
)

// AddTeacher creates or merges one teacher and records the department
// association when the candidate names one.
func (c *Controller) AddTeacher(ctx context.Context, cand candidate.Teacher, year int) (catalog.Teacher, error) {
	existing, err := c.lookup.Teacher(ctx, cand.ID)
	if notFound(err) {
		ent := catalog.Teacher{ID: cand.ID, Name: cand.Name}
		ent.AddYear(year)
		if err := c.store.InsertTeacher(ctx, ent); err != nil {
			return catalog.Teacher{}, err
		}
		existing = ent
	} else if err != nil {
		return catalog.Teacher{}, err
	} else {
		changed := false
		// The portal re-renders names as titles accrue; follow it.
		if cand.Name != "" && cand.Name != existing.Name {
			c.log.Debug("teacher renamed",
				zap.Int64("id", existing.ID),
				zap.String("from", existing.Name),
				zap.String("to", cand.Name))
			existing.Name = cand.Name
			changed = true
		}
		before := existing.TemporalRange
		existing.AddYear(year)
		if existing.TemporalRange != before {
			changed = true
		}
		if changed {
			if err := c.store.UpdateTeacher(ctx, existing); err != nil {
				return catalog.Teacher{}, err
			}
		}
	}

	if cand.DepartmentID != 0 {
		if err := c.store.LinkTeacherDepartment(ctx, cand.ID, cand.DepartmentID); err != nil {
			return catalog.Teacher{}, err
		}
		linked := false
		for _, id := range existing.DepartmentIDs {
			if id == cand.DepartmentID {
				linked = true
				break
			}
		}
		if !linked {
			existing.DepartmentIDs = append(existing.DepartmentIDs, cand.DepartmentID)
		}
	}
	c.lookup.Note(existing)
	return existing, nil
}

// TeacherByName resolves a teacher by exact display name; turn detail pages
// list teachers by name only.
func (c *Controller) TeacherByName(ctx context.Context, name string) (catalog.Teacher, error) {
	return c.lookup.TeacherByName(ctx, name)
}

// AddStudent creates or merges one student. The portal recycles student ids,
// so the rows under a portal id are matched by identity (name, then
// abbreviation); a candidate matching none of them becomes a new row.
func (c *Controller) AddStudent(ctx context.Context, cand candidate.Student, year int) (catalog.Student, error) {
	rows, err := c.lookup.StudentsByPortalID(ctx, cand.PortalID)
	if err != nil {
		return catalog.Student{}, err
	}

	var match *catalog.Student
	for i := range rows {
		if cand.Name != "" && rows[i].Name == cand.Name {
			match = &rows[i]
			break
		}
		if cand.Name == "" && cand.Abbreviation != "" && rows[i].Abbreviation == cand.Abbreviation {
			match = &rows[i]
			break
		}
	}

	if match == nil {
		ent := catalog.Student{
			PortalID:      cand.PortalID,
			Name:          cand.Name,
			Abbreviation:  cand.Abbreviation,
			CourseID:      cand.CourseID,
			InstitutionID: cand.InstitutionID,
		}
		ent.AddYear(year)
		id, err := c.store.InsertStudent(ctx, ent)
		if err != nil {
			return catalog.Student{}, err
		}
		ent.ID = id
		c.lookup.Note(ent)
		c.observe("student", true, false)
		if len(rows) > 0 {
			c.log.Info("portal student id recycled",
				zap.Int64("portal_id", cand.PortalID),
				zap.Int("known_identities", len(rows)+1))
		}
		return ent, nil
	}

	existing := *match
	if cand.Abbreviation != "" && existing.Abbreviation != "" &&
		cand.Abbreviation != existing.Abbreviation {
		return catalog.Student{}, conflict(
			fmt.Sprintf("student %d", existing.PortalID), "abbreviation",
			existing.Abbreviation, cand.Abbreviation)
	}

	changed := false
	if existing.Abbreviation == "" && cand.Abbreviation != "" {
		existing.Abbreviation = cand.Abbreviation
		changed = true
	}
	if cand.CourseID != 0 && cand.CourseID != existing.CourseID {
		existing.CourseID = cand.CourseID
		changed = true
	}
	if cand.InstitutionID != 0 && cand.InstitutionID != existing.InstitutionID {
		existing.InstitutionID = cand.InstitutionID
		changed = true
	}
	before := existing.TemporalRange
	existing.AddYear(year)
	if existing.TemporalRange != before {
		changed = true
	}
	if changed {
		if err := c.store.UpdateStudent(ctx, existing); err != nil {
			return catalog.Student{}, err
		}
		c.lookup.Note(existing)
	}
	c.observe("student", false, changed)
	return existing, nil
}

// AddAdmissions appends a batch of national-contest admission records.
// Admissions are point-in-time facts with no natural key, so they are plain
// inserts.
func (c *Controller) AddAdmissions(ctx context.Context, cands []candidate.Admission) (Stats, error) {
	var stats Stats
	for _, cand := range cands {
		ent := catalog.Admission{
			StudentID: cand.StudentID,
			Name:      cand.Name,
			CourseID:  cand.CourseID,
			Phase:     cand.Phase,
			Year:      cand.Year,
			Option:    cand.Option,
			State:     cand.State,
			CheckDate: cand.CheckDate,
		}
		if err := c.store.InsertAdmission(ctx, ent); err != nil {
			return stats, err
		}
		stats.Added++
		c.observe("admission", true, false)
	}
	return stats, nil
}

// AddEnrollment creates or merges one enrollment. Merging only fills fields
// the stored row is missing; the portal renders older enrollment pages with
// less detail over time, so present values always win over new ones.
func (c *Controller) AddEnrollment(ctx context.Context, cand candidate.Enrollment) (catalog.Enrollment, error) {
	ent, _, _, err := c.addEnrollment(ctx, cand)
	return ent, err
}

func (c *Controller) addEnrollment(ctx context.Context, cand candidate.Enrollment) (catalog.Enrollment, bool, bool, error) {
	existing, err := c.lookup.Enrollment(ctx, cand.StudentID, cand.ClassInstanceID)
	if notFound(err) {
		ent := catalog.Enrollment{
			StudentID:       cand.StudentID,
			ClassInstanceID: cand.ClassInstanceID,
			Attempt:         cand.Attempt,
			StudentYear:     cand.StudentYear,
			Statutes:        cand.Statutes,
			Observation:     cand.Observation,
		}
		if err := c.store.InsertEnrollment(ctx, ent); err != nil {
			return catalog.Enrollment{}, false, false, err
		}
		c.lookup.Note(ent)
		c.observe("enrollment", true, false)
		return ent, true, false, nil
	}
	if err != nil {
		return catalog.Enrollment{}, false, false, err
	}

	changed := false
	if existing.Attempt == 0 && cand.Attempt != 0 {
		existing.Attempt = cand.Attempt
		changed = true
	}
	if existing.StudentYear == 0 && cand.StudentYear != 0 {
		existing.StudentYear = cand.StudentYear
		changed = true
	}
	if existing.Statutes == "" && cand.Statutes != "" {
		existing.Statutes = cand.Statutes
		changed = true
	}
	if existing.Observation == "" && cand.Observation != "" {
		existing.Observation = cand.Observation
		changed = true
	}
	if changed {
		if err := c.store.UpdateEnrollment(ctx, existing); err != nil {
			return catalog.Enrollment{}, false, false, err
		}
		c.lookup.Note(existing)
	}
	c.observe("enrollment", false, changed)
	return existing, false, changed, nil
}

// AddEnrollments merges a batch, accumulating counters.
func (c *Controller) AddEnrollments(ctx context.Context, cands []candidate.Enrollment) (Stats, error) {
	var stats Stats
	for _, cand := range cands {
		_, created, changed, err := c.addEnrollment(ctx, cand)
		if err != nil {
			return stats, err
		}
		stats.record(changed, created)
	}
	return stats, nil
}
