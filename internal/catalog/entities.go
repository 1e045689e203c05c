// Package catalog defines the persisted entity model for the academic portal
// snapshot: the institutional hierarchy, course catalog, schedules,
// enrollments and admissions.
package catalog

import (
	"fmt"
	"time"
)

// RoomType tells the purpose of a room.
type RoomType int

// Known room purposes.
const (
	RoomGeneric RoomType = iota + 1
	RoomClassroom
	RoomAuditorium
	RoomLaboratory
	RoomComputer
	RoomMeeting
	RoomMasters
)

func (t RoomType) String() string {
	switch t {
	case RoomGeneric:
		return "generic"
	case RoomClassroom:
		return "classroom"
	case RoomAuditorium:
		return "auditorium"
	case RoomLaboratory:
		return "laboratory"
	case RoomComputer:
		return "computer"
	case RoomMeeting:
		return "meeting"
	case RoomMasters:
		return "masters"
	default:
		return fmt.Sprintf("room_type(%d)", int(t))
	}
}

// Institution is a school or faculty within the portal hierarchy.
// The portal-assigned ID is the natural key.
type Institution struct {
	ID           int64
	Name         string
	Abbreviation string
	TemporalRange
}

func (i Institution) String() string {
	return fmt.Sprintf("%s(%d)", i.Abbreviation, i.ID)
}

// Department belongs to exactly one institution. Portal-assigned ID is the
// natural key; finding the same ID under two institutions is a data conflict.
type Department struct {
	ID            int64
	Name          string
	InstitutionID int64
	TemporalRange
}

func (d Department) String() string {
	return fmt.Sprintf("%s(%d)", d.Name, d.ID)
}

// Degree is a static kind of qualification (bachelor, master, ...).
type Degree struct {
	ID         int64
	PortalCode string
	Name       string
}

// Period is one teaching span of an academic year: part Part out of Parts
// (1/1 annual, n/2 semester, n/4 trimester), tagged with the portal letter.
type Period struct {
	ID     int64
	Part   int
	Parts  int
	Letter string
}

func (p Period) String() string {
	return fmt.Sprintf("%d/%d(%s)", p.Part, p.Parts, p.Letter)
}

// Class is a taught subject. Name and abbreviation are immutable once set;
// ECTS credits are stored in half-credit units (the portal awards halves).
type Class struct {
	ID           int64
	DepartmentID int64
	Name         string
	Abbreviation string
	ECTS         int
}

func (c Class) String() string {
	return fmt.Sprintf("%s(%d)", c.Name, c.ID)
}

// ClassInstance is the occurrence of a Class on a (year, period). The
// composite (class, year, period) is the natural key. Info holds the
// free-text sections (program, bibliography, ...) as JSON.
type ClassInstance struct {
	ID       int64
	ClassID  int64
	PeriodID int64
	Year     int
	Info     []byte
}

// Course is a degree program. The portal-assigned ID is the natural key;
// abbreviations are reused across eras, which is why lookups by abbreviation
// may need a year to disambiguate.
type Course struct {
	ID            int64
	Name          string
	Abbreviation  string
	DegreeID      int64
	InstitutionID int64
	TemporalRange
}

func (c Course) String() string {
	return fmt.Sprintf("%s(%d, %s)", c.Name, c.ID, c.Abbreviation)
}

// Teacher as listed by a department. Portal-assigned ID is the natural key.
type Teacher struct {
	ID   int64
	Name string
	TemporalRange
	DepartmentIDs []int64
}

// Student is a portal user doing a course. ID is crawler-assigned; PortalID
// is the portal's. The same portal ID can legitimately describe two people
// (the portal recycles them), so the natural key is portal ID plus identity
// (name or abbreviation).
type Student struct {
	ID            int64
	PortalID      int64
	Name          string
	Abbreviation  string
	CourseID      int64
	InstitutionID int64
	TemporalRange
}

func (s Student) String() string {
	return fmt.Sprintf("%s (%d, %s)", s.Name, s.PortalID, s.Abbreviation)
}

// Admission is one national-contest entry that was accepted. The student
// reference is nil-able: rejected admissions never become portal students.
type Admission struct {
	ID        int64
	StudentID int64 // 0 when the admittee never enrolled
	Name      string
	CourseID  int64
	Phase     int
	Year      int
	Option    int
	State     string
	CheckDate time.Time
}

// Enrollment ties a student to a class instance. (student, class instance)
// is the natural key.
type Enrollment struct {
	ID              int64
	StudentID       int64
	ClassInstanceID int64
	Attempt         int
	StudentYear     int
	Statutes        string
	Observation     string
}

// Building on campus.
type Building struct {
	ID   int64
	Name string
	TemporalRange
}

// Room inside a building; (building, name, room type) is the natural key
// since different-purpose rooms reuse names.
type Room struct {
	ID         int64
	BuildingID int64
	Name       string
	Type       RoomType
}

func (r Room) String() string {
	return fmt.Sprintf("%s %s", r.Type, r.Name)
}

// TurnType is a static teaching modality (theoretical, practical, ...).
type TurnType struct {
	ID           int64
	Name         string
	Abbreviation string
}

// Turn is a teaching section of a class instance which students enroll to.
// (class instance, number, type) is the natural key.
type Turn struct {
	ID              int64
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
	StudentIDs      []int64
}

// TurnInstance is one recurring weekly slot of a turn. Start and End count
// minutes from midnight; (turn, start, weekday) is the natural key.
type TurnInstance struct {
	ID      int64
	TurnID  int64
	Start   int
	End     int
	Weekday time.Weekday
	RoomID  int64
}

func (t TurnInstance) String() string {
	return fmt.Sprintf("%s %02d:%02d-%02d:%02d",
		t.Weekday, t.Start/60, t.Start%60, t.End/60, t.End%60)
}
