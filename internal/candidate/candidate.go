// Package candidate holds transient, unvalidated fact bundles produced by a
// crawl task. A candidate carries natural keys, display attributes and parent
// references; it is discarded once the reconciliation controller has merged
// it into storage.
package candidate

import (
	"time"

	"github.com/opencampus/portal-crawler/internal/catalog"
)

// Institution as discovered on the hierarchy page.
type Institution struct {
	ID           int64
	Name         string
	Abbreviation string
	catalog.TemporalRange
}

// Department as discovered on an institution's department listing.
type Department struct {
	ID            int64
	Name          string
	InstitutionID int64
	catalog.TemporalRange
}

// Class as discovered on a department's class listing plus its detail page.
type Class struct {
	ID           int64
	DepartmentID int64
	Name         string
	Abbreviation string
	ECTS         int
}

// ClassInstance references an already-persisted class.
type ClassInstance struct {
	ClassID  int64
	PeriodID int64
	Year     int
}

// Course as discovered on the course listing and statistics pages.
type Course struct {
	ID            int64
	Name          string
	Abbreviation  string
	DegreeID      int64
	InstitutionID int64
	catalog.TemporalRange
}

// Teacher as discovered on a department's teacher listing.
type Teacher struct {
	ID           int64
	Name         string
	DepartmentID int64
}

// Equal reports whether two teacher candidates describe the same fact.
func (t Teacher) Equal(other Teacher) bool {
	return t.ID == other.ID && t.Name == other.Name
}

// Student as discovered on admission, enrollment or turn pages. Course and
// institution references are optional; at least one must be present.
type Student struct {
	PortalID      int64
	Name          string
	Abbreviation  string
	CourseID      int64
	InstitutionID int64
}

// Admission is one row of a national-contest admission page.
type Admission struct {
	StudentID int64 // 0 when the admittee has no portal student
	Name      string
	CourseID  int64
	Phase     int
	Year      int
	Option    int
	State     string
	CheckDate time.Time
}

// Enrollment references persisted student and class instance rows.
type Enrollment struct {
	StudentID       int64
	ClassInstanceID int64
	Attempt         int
	StudentYear     int
	Statutes        string
	Observation     string
}

// Building as discovered on schedule pages. Buildings have no portal id;
// the name is the natural key.
type Building struct {
	Name string
	catalog.TemporalRange
}

// Room as discovered on a building's schedule page. A zero Type means the
// page did not say what kind of room it is.
type Room struct {
	BuildingID int64
	Name       string
	Type       catalog.RoomType
}

// Equal reports whether two room candidates describe the same fact.
func (r Room) Equal(other Room) bool {
	return r.Name == other.Name && r.Type == other.Type &&
		r.BuildingID == other.BuildingID
}

// Turn as parsed from a turn detail page.
type Turn struct {
	ClassInstanceID int64
	Number          int
	TypeID          int64
	Enrolled        int
	Capacity        int
	Minutes         int
	Routes          string
	Restrictions    string
	State           string
	TeacherIDs      []int64
}

// TurnInstance is one weekly slot of a turn.
type TurnInstance struct {
	TurnID  int64
	Start   int
	End     int
	Weekday time.Weekday
	RoomID  int64
}
