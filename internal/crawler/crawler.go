// Package crawler holds the crawl tasks and the phase orchestration that
// walks the portal: each task fetches the pages for one target, parses them
// and hands the resulting candidates to a reconciliation controller.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/candidate"
	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/parser"
	"github.com/opencampus/portal-crawler/internal/reconcile"
	"github.com/opencampus/portal-crawler/internal/store"
)

// Fetcher retrieves an authenticated portal page as a parsed document.
// *session.Session satisfies it.
type Fetcher interface {
	Get(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// admissionPhases is how many national-contest phases a year has.
const admissionPhases = 3

// ClassInstanceTarget names one class occurrence for the enrollment and turn
// phases, carrying enough context to build its page URLs.
type ClassInstanceTarget struct {
	InstanceID    int64
	ClassID       int64
	Year          int
	PeriodLetter  string
	InstitutionID int64
}

func (t ClassInstanceTarget) String() string {
	return fmt.Sprintf("class %d %d/%s", t.ClassID, t.Year, t.PeriodLetter)
}

// Crawler binds one worker's fetcher and reconciliation controller to the
// crawl tasks. Not safe for concurrent use; the pool builds one per worker.
type Crawler struct {
	fetch Fetcher
	urls  *URLs
	ctrl  *reconcile.Controller
	log   *zap.Logger

	years            []int
	destructiveTurns bool
}

// NewCrawler builds a task set around a fetcher and a controller. years is
// the academic-year span tasks iterate over, oldest first.
func NewCrawler(fetch Fetcher, urls *URLs, ctrl *reconcile.Controller, years []int, destructiveTurns bool, log *zap.Logger) *Crawler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Crawler{
		fetch:            fetch,
		urls:             urls,
		ctrl:             ctrl,
		log:              log,
		years:            years,
		destructiveTurns: destructiveTurns,
	}
}

// Rooms crawls the campus schedule page for one year and reconciles every
// building and room it names.
func (c *Crawler) Rooms(ctx context.Context, year int) error {
	doc, err := c.fetch.Get(ctx, c.urls.Schedule(year))
	if err != nil {
		return fmt.Errorf("fetch schedule %d: %w", year, err)
	}
	for _, row := range parser.Rooms(doc) {
		b := candidate.Building{Name: row.Building}
		b.AddYear(year)
		building, err := c.ctrl.AddBuilding(ctx, b)
		if err != nil {
			return fmt.Errorf("building %q: %w", row.Building, err)
		}
		_, err = c.ctrl.AddRoom(ctx, candidate.Room{
			BuildingID: building.ID,
			Name:       row.Name,
			Type:       row.Type,
		})
		if err != nil {
			return fmt.Errorf("room %q/%q: %w", row.Building, row.Name, err)
		}
	}
	return nil
}

// Teachers crawls a department's teacher listings across the year span.
func (c *Crawler) Teachers(ctx context.Context, dept catalog.Department) error {
	for _, year := range c.years {
		doc, err := c.fetch.Get(ctx, c.urls.Teachers(dept.ID, year))
		if err != nil {
			return fmt.Errorf("fetch teachers of %s year %d: %w", dept, year, err)
		}
		for _, row := range parser.Teachers(doc) {
			_, err := c.ctrl.AddTeacher(ctx, candidate.Teacher{
				ID:           row.ID,
				Name:         row.Name,
				DepartmentID: dept.ID,
			}, year)
			if err != nil {
				return fmt.Errorf("teacher %d of %s: %w", row.ID, dept, err)
			}
		}
	}
	return nil
}

// Classes crawls a department's class listings across years and periods,
// following each class link to its detail page. It writes classes, their
// occurrences and the occurrence info sections.
func (c *Crawler) Classes(ctx context.Context, dept catalog.Department) error {
	for _, year := range c.years {
		doc, err := c.fetch.Get(ctx, c.urls.DepartmentPeriods(dept.ID, year))
		if err != nil {
			return fmt.Errorf("fetch department %s year %d: %w", dept, year, err)
		}
		for _, letter := range parser.PeriodLetters(doc) {
			if err := c.classesOfPeriod(ctx, dept, year, letter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Crawler) classesOfPeriod(ctx context.Context, dept catalog.Department, year int, letter string) error {
	period, err := c.ctrl.PeriodByLetter(ctx, letter)
	if err != nil {
		return fmt.Errorf("period %q: %w", letter, err)
	}
	listing, err := c.fetch.Get(ctx, c.urls.Classes(dept.ID, year, letter))
	if err != nil {
		return fmt.Errorf("fetch classes of %s %d/%s: %w", dept, year, letter, err)
	}
	for _, row := range parser.Classes(listing) {
		page, err := c.fetch.Get(ctx, c.urls.Class(row.ID, year, letter))
		if err != nil {
			return fmt.Errorf("fetch class %d: %w", row.ID, err)
		}
		header, err := parser.ClassHeader(page)
		if err != nil {
			return fmt.Errorf("class %d: %w", row.ID, err)
		}
		name := header.Name
		if name == "" {
			name = row.Name
		}
		class, err := c.ctrl.AddClass(ctx, candidate.Class{
			ID:           row.ID,
			DepartmentID: dept.ID,
			Name:         name,
			Abbreviation: header.Abbreviation,
			ECTS:         header.ECTS,
		})
		if err != nil {
			return fmt.Errorf("class %d: %w", row.ID, err)
		}
		instance, err := c.ctrl.AddClassInstance(ctx, candidate.ClassInstance{
			ClassID:  class.ID,
			PeriodID: period.ID,
			Year:     year,
		})
		if err != nil {
			return fmt.Errorf("class instance %d %d/%s: %w", class.ID, year, letter, err)
		}
		if sections := parser.ClassSections(page); len(sections) > 0 {
			info, err := json.Marshal(sections)
			if err != nil {
				return fmt.Errorf("encode class %d info: %w", class.ID, err)
			}
			if err := c.ctrl.SetClassInstanceInfo(ctx, instance, info); err != nil {
				return fmt.Errorf("class instance %d info: %w", instance.ID, err)
			}
		}
	}
	return nil
}

// Courses crawls an institution's degree-program listing, following each
// course to its curricular plan for the activity-year span.
func (c *Crawler) Courses(ctx context.Context, inst catalog.Institution) error {
	doc, err := c.fetch.Get(ctx, c.urls.Courses(inst.ID))
	if err != nil {
		return fmt.Errorf("fetch courses of %s: %w", inst, err)
	}
	for _, row := range parser.Courses(doc) {
		cand := candidate.Course{
			ID:            row.ID,
			Name:          row.Name,
			Abbreviation:  row.Abbreviation,
			InstitutionID: inst.ID,
		}
		plan, err := c.fetch.Get(ctx, c.urls.CurricularPlan(inst.ID, row.ID))
		if err != nil {
			return fmt.Errorf("fetch curricular plan of course %d: %w", row.ID, err)
		}
		if first, last := parser.CourseYears(plan); first != 0 {
			cand.AddYear(first)
			cand.AddYear(last)
		}
		if row.DegreeCode != "" {
			degree, err := c.ctrl.DegreeByCode(ctx, row.DegreeCode)
			if err != nil {
				return fmt.Errorf("course %d degree: %w", row.ID, err)
			}
			cand.DegreeID = degree.ID
		}
		if _, err := c.ctrl.AddCourse(ctx, cand); err != nil {
			return fmt.Errorf("course %d: %w", row.ID, err)
		}
	}
	return nil
}

// Admissions crawls a course's national-contest results across its known
// year span, all contest phases.
func (c *Crawler) Admissions(ctx context.Context, course catalog.Course) error {
	years := c.years
	if course.HasRange() {
		years = nil
		for y := course.FirstYear; y <= course.LastYear; y++ {
			years = append(years, y)
		}
	}
	for _, year := range years {
		for phase := 1; phase <= admissionPhases; phase++ {
			if err := c.admissionsPhase(ctx, course, year, phase); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Crawler) admissionsPhase(ctx context.Context, course catalog.Course, year, phase int) error {
	doc, err := c.fetch.Get(ctx, c.urls.Admissions(course.ID, year, phase))
	if err != nil {
		return fmt.Errorf("fetch admissions %s %d/%d: %w", course, year, phase, err)
	}
	rows := parser.Admissions(doc)
	if len(rows) == 0 {
		return nil
	}
	checked := time.Now().UTC()
	cands := make([]candidate.Admission, 0, len(rows))
	for _, row := range rows {
		cand := candidate.Admission{
			Name:      row.Name,
			CourseID:  course.ID,
			Phase:     phase,
			Year:      year,
			Option:    row.Option,
			State:     row.State,
			CheckDate: checked,
		}
		// Only admittees who went on to enroll have a portal student.
		if row.StudentID != 0 {
			student, err := c.ctrl.AddStudent(ctx, candidate.Student{
				PortalID:      row.StudentID,
				Name:          row.Name,
				CourseID:      course.ID,
				InstitutionID: course.InstitutionID,
			}, year)
			if err != nil {
				return fmt.Errorf("admitted student %d: %w", row.StudentID, err)
			}
			cand.StudentID = student.ID
		}
		cands = append(cands, cand)
	}
	if _, err := c.ctrl.AddAdmissions(ctx, cands); err != nil {
		return fmt.Errorf("admissions %s %d/%d: %w", course, year, phase, err)
	}
	return nil
}

// Enrollments crawls one class occurrence's enrollment listing.
func (c *Crawler) Enrollments(ctx context.Context, target ClassInstanceTarget) error {
	doc, err := c.fetch.Get(ctx, c.urls.Enrollments(target.ClassID, target.Year, target.PeriodLetter))
	if err != nil {
		return fmt.Errorf("fetch enrollments of %s: %w", target, err)
	}
	for _, row := range parser.Enrollments(doc) {
		student, err := c.resolveStudent(ctx, parser.StudentRow{
			ID:           row.StudentID,
			Name:         row.Name,
			Abbreviation: row.Abbreviation,
			CourseAbbr:   row.CourseAbbr,
		}, target)
		if err != nil {
			return err
		}
		_, err = c.ctrl.AddEnrollment(ctx, candidate.Enrollment{
			StudentID:       student.ID,
			ClassInstanceID: target.InstanceID,
			Attempt:         row.Attempt,
			StudentYear:     row.StudentYear,
			Statutes:        row.Statutes,
		})
		if err != nil {
			return fmt.Errorf("enrollment of %d in %s: %w", row.StudentID, target, err)
		}
	}
	return nil
}

// resolveStudent reconciles a student row from an enrollment or turn page.
// The course abbreviation is resolved against the target year; abbreviations
// the catalog does not know yet leave the course reference empty.
func (c *Crawler) resolveStudent(ctx context.Context, row parser.StudentRow, target ClassInstanceTarget) (catalog.Student, error) {
	cand := candidate.Student{
		PortalID:      row.ID,
		Name:          row.Name,
		Abbreviation:  row.Abbreviation,
		InstitutionID: target.InstitutionID,
	}
	if row.CourseAbbr != "" {
		course, err := c.ctrl.CourseByAbbreviation(ctx, row.CourseAbbr, target.Year)
		switch {
		case err == nil:
			cand.CourseID = course.ID
		case errors.Is(err, store.ErrNotFound):
			c.log.Debug("unknown course abbreviation on student row",
				zap.String("abbreviation", row.CourseAbbr),
				zap.Int64("student", row.ID))
		default:
			return catalog.Student{}, fmt.Errorf("student %d course %q: %w", row.ID, row.CourseAbbr, err)
		}
	}
	student, err := c.ctrl.AddStudent(ctx, cand, target.Year)
	if err != nil {
		return catalog.Student{}, fmt.Errorf("student %d: %w", row.ID, err)
	}
	return student, nil
}

// Turns crawls every turn of one class occurrence: the capacity block, the
// weekly slots (resolving rooms against the already-crawled campus map), the
// assigned teachers and the enrolled students.
func (c *Crawler) Turns(ctx context.Context, target ClassInstanceTarget) error {
	page, err := c.fetch.Get(ctx, c.urls.Class(target.ClassID, target.Year, target.PeriodLetter))
	if err != nil {
		return fmt.Errorf("fetch class page of %s: %w", target, err)
	}
	for _, ref := range parser.TurnRefs(page) {
		if err := c.turn(ctx, target, ref); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) turn(ctx context.Context, target ClassInstanceTarget, ref parser.TurnRef) error {
	label := fmt.Sprintf("%s%d", ref.TypeAbbreviation, ref.Number)
	turnType, err := c.ctrl.TurnTypeByAbbreviation(ctx, ref.TypeAbbreviation)
	if err != nil {
		return fmt.Errorf("turn %s of %s: %w", label, target, err)
	}
	doc, err := c.fetch.Get(ctx, c.urls.Turn(target.ClassID, target.Year, target.PeriodLetter, label))
	if err != nil {
		return fmt.Errorf("fetch turn %s of %s: %w", label, target, err)
	}
	detail, err := parser.Turn(doc)
	if err != nil {
		return fmt.Errorf("turn %s of %s: %w", label, target, err)
	}

	cand := candidate.Turn{
		ClassInstanceID: target.InstanceID,
		Number:          ref.Number,
		TypeID:          turnType.ID,
		Enrolled:        detail.Enrolled,
		Capacity:        detail.Capacity,
		Minutes:         detail.Minutes,
		Routes:          detail.Routes,
		Restrictions:    detail.Restrictions,
		State:           detail.State,
	}
	for _, name := range detail.Teachers {
		teacher, err := c.ctrl.TeacherByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			// Guest lecturers show up on turns without a department listing.
			c.log.Debug("turn names unknown teacher", zap.String("name", name))
			continue
		}
		if err != nil {
			return fmt.Errorf("turn %s teacher %q: %w", label, name, err)
		}
		cand.TeacherIDs = append(cand.TeacherIDs, teacher.ID)
	}
	turn, err := c.ctrl.AddTurn(ctx, cand)
	if err != nil {
		return fmt.Errorf("turn %s of %s: %w", label, target, err)
	}

	instances := make([]candidate.TurnInstance, 0, len(detail.Slots))
	for _, slot := range detail.Slots {
		inst := candidate.TurnInstance{
			TurnID:  turn.ID,
			Start:   slot.Start,
			End:     slot.End,
			Weekday: slot.Weekday,
		}
		switch {
		case slot.Room == "":
		case slot.Building == "":
			// A room cell without the building separator cannot be
			// resolved against the campus map.
			c.log.Debug("slot names a room without a building",
				zap.String("room", slot.Room),
				zap.String("turn", label),
				zap.Stringer("class", target))
		default:
			room, err := c.resolveRoom(ctx, slot, target.Year)
			if err != nil {
				return fmt.Errorf("turn %s slot %s: %w", label, slot.Weekday, err)
			}
			inst.RoomID = room.ID
		}
		instances = append(instances, inst)
	}
	if _, err := c.ctrl.AddTurnInstances(ctx, turn.ID, instances, c.destructiveTurns); err != nil {
		return fmt.Errorf("turn %s schedule: %w", label, err)
	}

	for _, row := range parser.TurnStudents(doc) {
		student, err := c.resolveStudent(ctx, row, target)
		if err != nil {
			return err
		}
		if err := c.ctrl.AddTurnStudent(ctx, turn.ID, student.ID); err != nil {
			return fmt.Errorf("turn %s student %d: %w", label, row.ID, err)
		}
	}
	return nil
}

func (c *Crawler) resolveRoom(ctx context.Context, slot parser.SlotRow, year int) (catalog.Room, error) {
	b := candidate.Building{Name: slot.Building}
	b.AddYear(year)
	building, err := c.ctrl.AddBuilding(ctx, b)
	if err != nil {
		return catalog.Room{}, fmt.Errorf("building %q: %w", slot.Building, err)
	}
	room, err := c.ctrl.Room(ctx, building.ID, slot.Room, slot.RoomType)
	if errors.Is(err, store.ErrNotFound) {
		// Schedule pages only list rooms in use; a slot can reference one
		// the campus map never showed.
		return c.ctrl.AddRoom(ctx, candidate.Room{
			BuildingID: building.ID,
			Name:       slot.Room,
			Type:       slot.RoomType,
		})
	}
	if err != nil {
		return catalog.Room{}, fmt.Errorf("room %q/%q: %w", slot.Building, slot.Room, err)
	}
	return room, nil
}
