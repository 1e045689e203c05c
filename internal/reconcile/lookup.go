package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/store"
)

// Lookup resolves canonical rows for the controller. Two implementations
// exist: Direct queries the store every time, Cached keeps a process-local
// mirror of each collection. The store stays authoritative either way; the
// mirror is a derived index that Note keeps in lock-step with writes.
//
// A Lookup belongs to exactly one controller and is not safe for concurrent
// use; every worker builds its own.
type Lookup interface {
	Institution(ctx context.Context, id int64) (catalog.Institution, error)
	Department(ctx context.Context, id int64) (catalog.Department, error)
	Class(ctx context.Context, id int64) (catalog.Class, error)
	ClassInstance(ctx context.Context, classID int64, year int, periodID int64) (catalog.ClassInstance, error)
	Course(ctx context.Context, id int64) (catalog.Course, error)
	CoursesByAbbreviation(ctx context.Context, abbreviation string) ([]catalog.Course, error)
	Teacher(ctx context.Context, id int64) (catalog.Teacher, error)
	TeacherByName(ctx context.Context, name string) (catalog.Teacher, error)
	StudentsByPortalID(ctx context.Context, portalID int64) ([]catalog.Student, error)
	Enrollment(ctx context.Context, studentID, classInstanceID int64) (catalog.Enrollment, error)
	Building(ctx context.Context, name string) (catalog.Building, error)
	Room(ctx context.Context, buildingID int64, name string, roomType catalog.RoomType) (catalog.Room, error)
	RoomsByName(ctx context.Context, buildingID int64, name string) ([]catalog.Room, error)
	Turn(ctx context.Context, classInstanceID int64, number int, typeID int64) (catalog.Turn, error)
	Degrees(ctx context.Context) ([]catalog.Degree, error)
	Periods(ctx context.Context) ([]catalog.Period, error)
	TurnTypes(ctx context.Context) ([]catalog.TurnType, error)

	// Note folds a row the controller just committed into any derived
	// index the implementation keeps.
	Note(entity any)
}

// Direct answers every lookup with a store query.
type Direct struct {
	store store.Store
}

var _ Lookup = (*Direct)(nil)

// NewDirect builds a pass-through Lookup over the store.
func NewDirect(st store.Store) *Direct {
	return &Direct{store: st}
}

func (d *Direct) Institution(ctx context.Context, id int64) (catalog.Institution, error) {
	return d.store.Institution(ctx, id)
}

func (d *Direct) Department(ctx context.Context, id int64) (catalog.Department, error) {
	return d.store.Department(ctx, id)
}

func (d *Direct) Class(ctx context.Context, id int64) (catalog.Class, error) {
	return d.store.Class(ctx, id)
}

func (d *Direct) ClassInstance(ctx context.Context, classID int64, year int, periodID int64) (catalog.ClassInstance, error) {
	return d.store.ClassInstanceByKey(ctx, classID, year, periodID)
}

func (d *Direct) Course(ctx context.Context, id int64) (catalog.Course, error) {
	return d.store.Course(ctx, id)
}

func (d *Direct) CoursesByAbbreviation(ctx context.Context, abbreviation string) ([]catalog.Course, error) {
	return d.store.CoursesByAbbreviation(ctx, abbreviation)
}

func (d *Direct) Teacher(ctx context.Context, id int64) (catalog.Teacher, error) {
	return d.store.Teacher(ctx, id)
}

func (d *Direct) TeacherByName(ctx context.Context, name string) (catalog.Teacher, error) {
	return d.store.TeacherByName(ctx, name)
}

func (d *Direct) StudentsByPortalID(ctx context.Context, portalID int64) ([]catalog.Student, error) {
	return d.store.StudentsByPortalID(ctx, portalID)
}

func (d *Direct) Enrollment(ctx context.Context, studentID, classInstanceID int64) (catalog.Enrollment, error) {
	return d.store.EnrollmentByKey(ctx, studentID, classInstanceID)
}

func (d *Direct) Building(ctx context.Context, name string) (catalog.Building, error) {
	return d.store.BuildingByName(ctx, name)
}

func (d *Direct) Room(ctx context.Context, buildingID int64, name string, roomType catalog.RoomType) (catalog.Room, error) {
	return d.store.RoomByKey(ctx, buildingID, name, roomType)
}

func (d *Direct) RoomsByName(ctx context.Context, buildingID int64, name string) ([]catalog.Room, error) {
	return d.store.RoomsByName(ctx, buildingID, name)
}

func (d *Direct) Turn(ctx context.Context, classInstanceID int64, number int, typeID int64) (catalog.Turn, error) {
	return d.store.TurnByKey(ctx, classInstanceID, number, typeID)
}

func (d *Direct) Degrees(ctx context.Context) ([]catalog.Degree, error) {
	return d.store.Degrees(ctx)
}

func (d *Direct) Periods(ctx context.Context) ([]catalog.Period, error) {
	return d.store.Periods(ctx)
}

func (d *Direct) TurnTypes(ctx context.Context) ([]catalog.TurnType, error) {
	return d.store.TurnTypes(ctx)
}

// Note is a no-op; Direct keeps no derived state.
func (d *Direct) Note(any) {}

type classInstanceKey struct {
	classID  int64
	year     int
	periodID int64
}

type roomKey struct {
	buildingID int64
	name       string
	roomType   catalog.RoomType
}

type turnKey struct {
	classInstanceID int64
	number          int
	typeID          int64
}

type enrollmentKey struct {
	studentID       int64
	classInstanceID int64
}

// Cached mirrors each collection in maps keyed by natural key. The mirror is
// populated once at construction and kept current by Note; it never reloads.
type Cached struct {
	store store.Store

	institutions   map[int64]catalog.Institution
	departments    map[int64]catalog.Department
	classes        map[int64]catalog.Class
	classInstances map[classInstanceKey]catalog.ClassInstance
	courses        map[int64]catalog.Course
	teachers       map[int64]catalog.Teacher
	students       map[int64][]catalog.Student
	enrollments    map[enrollmentKey]catalog.Enrollment
	buildings      map[string]catalog.Building
	rooms          map[roomKey]catalog.Room
	turns          map[turnKey]catalog.Turn
	degrees        []catalog.Degree
	periods        []catalog.Period
	turnTypes      []catalog.TurnType
}

var _ Lookup = (*Cached)(nil)

// NewCached scans the store and builds the mirror. Turns and enrollments are
// not preloaded; they are too numerous to hold and each worker touches a
// disjoint slice of them, so those collections fill in lazily through Note.
func NewCached(ctx context.Context, st store.Store) (*Cached, error) {
	c := &Cached{
		store:          st,
		institutions:   map[int64]catalog.Institution{},
		departments:    map[int64]catalog.Department{},
		classes:        map[int64]catalog.Class{},
		classInstances: map[classInstanceKey]catalog.ClassInstance{},
		courses:        map[int64]catalog.Course{},
		teachers:       map[int64]catalog.Teacher{},
		students:       map[int64][]catalog.Student{},
		enrollments:    map[enrollmentKey]catalog.Enrollment{},
		buildings:      map[string]catalog.Building{},
		rooms:          map[roomKey]catalog.Room{},
		turns:          map[turnKey]catalog.Turn{},
	}

	institutions, err := st.Institutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load institutions: %w", err)
	}
	for _, i := range institutions {
		c.institutions[i.ID] = i
	}
	departments, err := st.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	for _, d := range departments {
		c.departments[d.ID] = d
	}
	classes, err := st.Classes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	for _, cl := range classes {
		c.classes[cl.ID] = cl
	}
	classInstances, err := st.ClassInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load class instances: %w", err)
	}
	for _, ci := range classInstances {
		c.classInstances[classInstanceKey{ci.ClassID, ci.Year, ci.PeriodID}] = ci
	}
	courses, err := st.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	for _, co := range courses {
		c.courses[co.ID] = co
	}
	teachers, err := st.Teachers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load teachers: %w", err)
	}
	for _, t := range teachers {
		c.teachers[t.ID] = t
	}
	buildings, err := st.Buildings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load buildings: %w", err)
	}
	for _, b := range buildings {
		c.buildings[b.Name] = b
	}
	rooms, err := st.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	for _, r := range rooms {
		c.rooms[roomKey{r.BuildingID, r.Name, r.Type}] = r
	}
	if c.degrees, err = st.Degrees(ctx); err != nil {
		return nil, fmt.Errorf("load degrees: %w", err)
	}
	if c.periods, err = st.Periods(ctx); err != nil {
		return nil, fmt.Errorf("load periods: %w", err)
	}
	if c.turnTypes, err = st.TurnTypes(ctx); err != nil {
		return nil, fmt.Errorf("load turn types: %w", err)
	}
	return c, nil
}

func (c *Cached) Institution(_ context.Context, id int64) (catalog.Institution, error) {
	i, ok := c.institutions[id]
	if !ok {
		return catalog.Institution{}, fmt.Errorf("institution %d: %w", id, store.ErrNotFound)
	}
	return i, nil
}

func (c *Cached) Department(_ context.Context, id int64) (catalog.Department, error) {
	d, ok := c.departments[id]
	if !ok {
		return catalog.Department{}, fmt.Errorf("department %d: %w", id, store.ErrNotFound)
	}
	return d, nil
}

func (c *Cached) Class(_ context.Context, id int64) (catalog.Class, error) {
	cl, ok := c.classes[id]
	if !ok {
		return catalog.Class{}, fmt.Errorf("class %d: %w", id, store.ErrNotFound)
	}
	return cl, nil
}

func (c *Cached) ClassInstance(_ context.Context, classID int64, year int, periodID int64) (catalog.ClassInstance, error) {
	ci, ok := c.classInstances[classInstanceKey{classID, year, periodID}]
	if !ok {
		return catalog.ClassInstance{}, fmt.Errorf("class instance (%d, %d, %d): %w",
			classID, year, periodID, store.ErrNotFound)
	}
	return ci, nil
}

func (c *Cached) Course(_ context.Context, id int64) (catalog.Course, error) {
	co, ok := c.courses[id]
	if !ok {
		return catalog.Course{}, fmt.Errorf("course %d: %w", id, store.ErrNotFound)
	}
	return co, nil
}

func (c *Cached) CoursesByAbbreviation(_ context.Context, abbreviation string) ([]catalog.Course, error) {
	var out []catalog.Course
	for _, co := range c.courses {
		if co.Abbreviation == abbreviation {
			out = append(out, co)
		}
	}
	return out, nil
}

func (c *Cached) Teacher(_ context.Context, id int64) (catalog.Teacher, error) {
	t, ok := c.teachers[id]
	if !ok {
		return catalog.Teacher{}, fmt.Errorf("teacher %d: %w", id, store.ErrNotFound)
	}
	return t, nil
}

func (c *Cached) TeacherByName(_ context.Context, name string) (catalog.Teacher, error) {
	var found []catalog.Teacher
	for _, t := range c.teachers {
		if t.Name == name {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return catalog.Teacher{}, fmt.Errorf("teacher %q: %w", name, store.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return catalog.Teacher{}, fmt.Errorf("teacher %q: several teachers share the name", name)
	}
}

// StudentsByPortalID consults the mirror first and falls back to the store:
// students are not preloaded, and another worker's insert may have landed
// rows the mirror has never seen.
func (c *Cached) StudentsByPortalID(ctx context.Context, portalID int64) ([]catalog.Student, error) {
	if rows, ok := c.students[portalID]; ok {
		return rows, nil
	}
	rows, err := c.store.StudentsByPortalID(ctx, portalID)
	if err != nil {
		return nil, err
	}
	c.students[portalID] = rows
	return rows, nil
}

func (c *Cached) Enrollment(ctx context.Context, studentID, classInstanceID int64) (catalog.Enrollment, error) {
	if e, ok := c.enrollments[enrollmentKey{studentID, classInstanceID}]; ok {
		return e, nil
	}
	return c.store.EnrollmentByKey(ctx, studentID, classInstanceID)
}

func (c *Cached) Building(_ context.Context, name string) (catalog.Building, error) {
	b, ok := c.buildings[name]
	if !ok {
		return catalog.Building{}, fmt.Errorf("building %q: %w", name, store.ErrNotFound)
	}
	return b, nil
}

func (c *Cached) Room(_ context.Context, buildingID int64, name string, roomType catalog.RoomType) (catalog.Room, error) {
	r, ok := c.rooms[roomKey{buildingID, name, roomType}]
	if !ok {
		return catalog.Room{}, fmt.Errorf("room (%d, %q, %s): %w",
			buildingID, name, roomType, store.ErrNotFound)
	}
	return r, nil
}

func (c *Cached) RoomsByName(_ context.Context, buildingID int64, name string) ([]catalog.Room, error) {
	var out []catalog.Room
	for key, r := range c.rooms {
		if key.buildingID == buildingID && key.name == name {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Cached) Turn(ctx context.Context, classInstanceID int64, number int, typeID int64) (catalog.Turn, error) {
	if t, ok := c.turns[turnKey{classInstanceID, number, typeID}]; ok {
		return t, nil
	}
	t, err := c.store.TurnByKey(ctx, classInstanceID, number, typeID)
	if err != nil {
		return catalog.Turn{}, err
	}
	c.turns[turnKey{classInstanceID, number, typeID}] = t
	return t, nil
}

func (c *Cached) Degrees(context.Context) ([]catalog.Degree, error) {
	return c.degrees, nil
}

func (c *Cached) Periods(context.Context) ([]catalog.Period, error) {
	return c.periods, nil
}

func (c *Cached) TurnTypes(context.Context) ([]catalog.TurnType, error) {
	return c.turnTypes, nil
}

// Note folds a committed row into the mirror.
func (c *Cached) Note(entity any) {
	switch e := entity.(type) {
	case catalog.Institution:
		c.institutions[e.ID] = e
	case catalog.Department:
		c.departments[e.ID] = e
	case catalog.Class:
		c.classes[e.ID] = e
	case catalog.ClassInstance:
		c.classInstances[classInstanceKey{e.ClassID, e.Year, e.PeriodID}] = e
	case catalog.Course:
		c.courses[e.ID] = e
	case catalog.Teacher:
		c.teachers[e.ID] = e
	case catalog.Student:
		rows := c.students[e.PortalID]
		replaced := false
		for i := range rows {
			if rows[i].ID == e.ID {
				rows[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			rows = append(rows, e)
		}
		c.students[e.PortalID] = rows
	case catalog.Enrollment:
		c.enrollments[enrollmentKey{e.StudentID, e.ClassInstanceID}] = e
	case catalog.Building:
		c.buildings[e.Name] = e
	case catalog.Room:
		c.rooms[roomKey{e.BuildingID, e.Name, e.Type}] = e
	case catalog.Turn:
		c.turns[turnKey{e.ClassInstanceID, e.Number, e.TypeID}] = e
	case catalog.Degree:
		c.degrees = append(c.degrees, e)
	case catalog.Period:
		c.periods = append(c.periods, e)
	case catalog.TurnType:
		c.turnTypes = append(c.turnTypes, e)
	}
}

// notFound reports whether the error is the store's missing-row sentinel.
func notFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
