// Package store defines the persistence contract for the portal snapshot.
// Implementations live in the postgres and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/opencampus/portal-crawler/internal/catalog"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when an insert violates a natural-key uniqueness
// constraint. Under concurrent discovery the backend constraint is the last
// line of defense against duplicate rows; callers treat this as a retryable
// failure, since the loser's retry will find the winner's committed row.
var ErrDuplicate = errors.New("store: duplicate natural key")

// CrawlRun records one execution of a crawl phase for observability.
type CrawlRun struct {
	ID         string
	Phase      string
	StartedAt  time.Time
	FinishedAt *time.Time
	ErrorText  string
}

// Store is the persistence surface used by the reconciliation controller and
// the phase orchestrator. Every Insert* returns ErrDuplicate when the
// entity's natural-key constraint rejects the row.
type Store interface {
	// Static collections, seeded once when empty.
	Degrees(ctx context.Context) ([]catalog.Degree, error)
	InsertDegree(ctx context.Context, d catalog.Degree) error
	Periods(ctx context.Context) ([]catalog.Period, error)
	InsertPeriod(ctx context.Context, p catalog.Period) error
	TurnTypes(ctx context.Context) ([]catalog.TurnType, error)
	InsertTurnType(ctx context.Context, t catalog.TurnType) error

	Institution(ctx context.Context, id int64) (catalog.Institution, error)
	Institutions(ctx context.Context) ([]catalog.Institution, error)
	InsertInstitution(ctx context.Context, i catalog.Institution) error
	UpdateInstitution(ctx context.Context, i catalog.Institution) error

	Department(ctx context.Context, id int64) (catalog.Department, error)
	Departments(ctx context.Context) ([]catalog.Department, error)
	InsertDepartment(ctx context.Context, d catalog.Department) error
	UpdateDepartment(ctx context.Context, d catalog.Department) error

	Class(ctx context.Context, id int64) (catalog.Class, error)
	Classes(ctx context.Context) ([]catalog.Class, error)
	InsertClass(ctx context.Context, c catalog.Class) error
	UpdateClass(ctx context.Context, c catalog.Class) error

	ClassInstanceByKey(ctx context.Context, classID int64, year int, periodID int64) (catalog.ClassInstance, error)
	ClassInstances(ctx context.Context) ([]catalog.ClassInstance, error)
	InsertClassInstance(ctx context.Context, ci catalog.ClassInstance) (int64, error)
	UpdateClassInstanceInfo(ctx context.Context, id int64, info []byte) error

	Course(ctx context.Context, id int64) (catalog.Course, error)
	Courses(ctx context.Context) ([]catalog.Course, error)
	CoursesByAbbreviation(ctx context.Context, abbreviation string) ([]catalog.Course, error)
	InsertCourse(ctx context.Context, c catalog.Course) error
	UpdateCourse(ctx context.Context, c catalog.Course) error

	Teacher(ctx context.Context, id int64) (catalog.Teacher, error)
	Teachers(ctx context.Context) ([]catalog.Teacher, error)
	TeacherByName(ctx context.Context, name string) (catalog.Teacher, error)
	InsertTeacher(ctx context.Context, t catalog.Teacher) error
	UpdateTeacher(ctx context.Context, t catalog.Teacher) error
	LinkTeacherDepartment(ctx context.Context, teacherID, departmentID int64) error

	StudentsByPortalID(ctx context.Context, portalID int64) ([]catalog.Student, error)
	InsertStudent(ctx context.Context, s catalog.Student) (int64, error)
	UpdateStudent(ctx context.Context, s catalog.Student) error

	Admissions(ctx context.Context) ([]catalog.Admission, error)
	InsertAdmission(ctx context.Context, a catalog.Admission) error

	EnrollmentByKey(ctx context.Context, studentID, classInstanceID int64) (catalog.Enrollment, error)
	InsertEnrollment(ctx context.Context, e catalog.Enrollment) error
	UpdateEnrollment(ctx context.Context, e catalog.Enrollment) error

	BuildingByName(ctx context.Context, name string) (catalog.Building, error)
	Buildings(ctx context.Context) ([]catalog.Building, error)
	InsertBuilding(ctx context.Context, b catalog.Building) error
	UpdateBuilding(ctx context.Context, b catalog.Building) error

	RoomByKey(ctx context.Context, buildingID int64, name string, roomType catalog.RoomType) (catalog.Room, error)
	RoomsByName(ctx context.Context, buildingID int64, name string) ([]catalog.Room, error)
	Rooms(ctx context.Context) ([]catalog.Room, error)
	InsertRoom(ctx context.Context, r catalog.Room) error

	TurnByKey(ctx context.Context, classInstanceID int64, number int, typeID int64) (catalog.Turn, error)
	InsertTurn(ctx context.Context, t catalog.Turn) (int64, error)
	UpdateTurn(ctx context.Context, t catalog.Turn) error
	LinkTurnTeacher(ctx context.Context, turnID, teacherID int64) error
	LinkTurnStudent(ctx context.Context, turnID, studentID int64) error

	TurnInstances(ctx context.Context, turnID int64) ([]catalog.TurnInstance, error)
	InsertTurnInstance(ctx context.Context, ti catalog.TurnInstance) error
	UpdateTurnInstanceRoom(ctx context.Context, id, roomID int64) error
	DeleteTurnInstance(ctx context.Context, id int64) error
	DeleteTurnInstances(ctx context.Context, turnID int64) (int64, error)

	// Observability.
	EntityCounts(ctx context.Context) (map[string]int64, error)
	StartCrawlRun(ctx context.Context, run CrawlRun) error
	FinishCrawlRun(ctx context.Context, id string, finishedAt time.Time, errText string) error

	Close()
}
