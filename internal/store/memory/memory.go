// Package memory provides an in-memory Store used by tests and local runs.
// It enforces the same natural-key uniqueness constraints as the relational
// schema so concurrency behavior matches the postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every collection in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	degrees   map[int64]catalog.Degree
	periods   map[int64]catalog.Period
	turnTypes map[int64]catalog.TurnType

	institutions map[int64]catalog.Institution
	departments  map[int64]catalog.Department
	classes      map[int64]catalog.Class
	courses      map[int64]catalog.Course
	teachers     map[int64]catalog.Teacher
	buildings    map[int64]catalog.Building
	rooms        map[int64]catalog.Room

	classInstances map[int64]catalog.ClassInstance
	students       map[int64]catalog.Student
	admissions     map[int64]catalog.Admission
	enrollments    map[int64]catalog.Enrollment
	turns          map[int64]catalog.Turn
	turnInstances  map[int64]catalog.TurnInstance

	teacherDepartments map[[2]int64]struct{}
	turnTeachers       map[[2]int64]struct{}
	turnStudents       map[[2]int64]struct{}

	crawlRuns map[string]store.CrawlRun

	nextID int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		degrees:            map[int64]catalog.Degree{},
		periods:            map[int64]catalog.Period{},
		turnTypes:          map[int64]catalog.TurnType{},
		institutions:       map[int64]catalog.Institution{},
		departments:        map[int64]catalog.Department{},
		classes:            map[int64]catalog.Class{},
		courses:            map[int64]catalog.Course{},
		teachers:           map[int64]catalog.Teacher{},
		buildings:          map[int64]catalog.Building{},
		rooms:              map[int64]catalog.Room{},
		classInstances:     map[int64]catalog.ClassInstance{},
		students:           map[int64]catalog.Student{},
		admissions:         map[int64]catalog.Admission{},
		enrollments:        map[int64]catalog.Enrollment{},
		turns:              map[int64]catalog.Turn{},
		turnInstances:      map[int64]catalog.TurnInstance{},
		teacherDepartments: map[[2]int64]struct{}{},
		turnTeachers:       map[[2]int64]struct{}{},
		turnStudents:       map[[2]int64]struct{}{},
		crawlRuns:          map[string]store.CrawlRun{},
		nextID:             1,
	}
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Close implements store.Store; nothing to release.
func (s *Store) Close() {}

// Degrees returns every degree ordered by id.
func (s *Store) Degrees(_ context.Context) ([]catalog.Degree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Degree, 0, len(s.degrees))
	for _, d := range s.degrees {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertDegree stores a degree.
func (s *Store) InsertDegree(_ context.Context, d catalog.Degree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.degrees[d.ID]; ok {
		return fmt.Errorf("degree %d: %w", d.ID, store.ErrDuplicate)
	}
	s.degrees[d.ID] = d
	return nil
}

// Periods returns every period ordered by id.
func (s *Store) Periods(_ context.Context) ([]catalog.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Period, 0, len(s.periods))
	for _, p := range s.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertPeriod stores a period.
func (s *Store) InsertPeriod(_ context.Context, p catalog.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.periods {
		if existing.Part == p.Part && existing.Parts == p.Parts {
			return fmt.Errorf("period %d/%d: %w", p.Part, p.Parts, store.ErrDuplicate)
		}
	}
	if p.ID == 0 {
		p.ID = s.allocID()
	}
	s.periods[p.ID] = p
	return nil
}

// TurnTypes returns every turn type ordered by id.
func (s *Store) TurnTypes(_ context.Context) ([]catalog.TurnType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.TurnType, 0, len(s.turnTypes))
	for _, t := range s.turnTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertTurnType stores a turn type.
func (s *Store) InsertTurnType(_ context.Context, t catalog.TurnType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.turnTypes {
		if existing.Abbreviation == t.Abbreviation {
			return fmt.Errorf("turn type %q: %w", t.Abbreviation, store.ErrDuplicate)
		}
	}
	if t.ID == 0 {
		t.ID = s.allocID()
	}
	s.turnTypes[t.ID] = t
	return nil
}

// Institution looks up an institution by portal id.
func (s *Store) Institution(_ context.Context, id int64) (catalog.Institution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.institutions[id]
	if !ok {
		return catalog.Institution{}, fmt.Errorf("institution %d: %w", id, store.ErrNotFound)
	}
	return i, nil
}

// Institutions returns every institution ordered by id.
func (s *Store) Institutions(_ context.Context) ([]catalog.Institution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Institution, 0, len(s.institutions))
	for _, i := range s.institutions {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertInstitution stores a new institution.
func (s *Store) InsertInstitution(_ context.Context, i catalog.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutions[i.ID]; ok {
		return fmt.Errorf("institution %d: %w", i.ID, store.ErrDuplicate)
	}
	s.institutions[i.ID] = i
	return nil
}

// UpdateInstitution overwrites an existing institution.
func (s *Store) UpdateInstitution(_ context.Context, i catalog.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutions[i.ID]; !ok {
		return fmt.Errorf("institution %d: %w", i.ID, store.ErrNotFound)
	}
	s.institutions[i.ID] = i
	return nil
}

// Department looks up a department by portal id.
func (s *Store) Department(_ context.Context, id int64) (catalog.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departments[id]
	if !ok {
		return catalog.Department{}, fmt.Errorf("department %d: %w", id, store.ErrNotFound)
	}
	return d, nil
}

// Departments returns every department ordered by id.
func (s *Store) Departments(_ context.Context) ([]catalog.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertDepartment stores a new department.
func (s *Store) InsertDepartment(_ context.Context, d catalog.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[d.ID]; ok {
		return fmt.Errorf("department %d: %w", d.ID, store.ErrDuplicate)
	}
	s.departments[d.ID] = d
	return nil
}

// UpdateDepartment overwrites an existing department.
func (s *Store) UpdateDepartment(_ context.Context, d catalog.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[d.ID]; !ok {
		return fmt.Errorf("department %d: %w", d.ID, store.ErrNotFound)
	}
	s.departments[d.ID] = d
	return nil
}

// Class looks up a class by portal id.
func (s *Store) Class(_ context.Context, id int64) (catalog.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return catalog.Class{}, fmt.Errorf("class %d: %w", id, store.ErrNotFound)
	}
	return c, nil
}

// Classes returns every class ordered by id.
func (s *Store) Classes(_ context.Context) ([]catalog.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Class, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertClass stores a new class.
func (s *Store) InsertClass(_ context.Context, c catalog.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[c.ID]; ok {
		return fmt.Errorf("class %d: %w", c.ID, store.ErrDuplicate)
	}
	s.classes[c.ID] = c
	return nil
}

// UpdateClass overwrites an existing class.
func (s *Store) UpdateClass(_ context.Context, c catalog.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[c.ID]; !ok {
		return fmt.Errorf("class %d: %w", c.ID, store.ErrNotFound)
	}
	s.classes[c.ID] = c
	return nil
}

// ClassInstanceByKey resolves a class instance by its natural key.
func (s *Store) ClassInstanceByKey(_ context.Context, classID int64, year int, periodID int64) (catalog.ClassInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ci := range s.classInstances {
		if ci.ClassID == classID && ci.Year == year && ci.PeriodID == periodID {
			return ci, nil
		}
	}
	return catalog.ClassInstance{}, fmt.Errorf("class instance (%d, %d, %d): %w",
		classID, year, periodID, store.ErrNotFound)
}

// ClassInstances returns every class instance ordered by year then id.
func (s *Store) ClassInstances(_ context.Context) ([]catalog.ClassInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.ClassInstance, 0, len(s.classInstances))
	for _, ci := range s.classInstances {
		out = append(out, ci)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertClassInstance stores a new class instance, returning its id.
func (s *Store) InsertClassInstance(_ context.Context, ci catalog.ClassInstance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.classInstances {
		if existing.ClassID == ci.ClassID && existing.Year == ci.Year && existing.PeriodID == ci.PeriodID {
			return 0, fmt.Errorf("class instance (%d, %d, %d): %w",
				ci.ClassID, ci.Year, ci.PeriodID, store.ErrDuplicate)
		}
	}
	ci.ID = s.allocID()
	s.classInstances[ci.ID] = ci
	return ci.ID, nil
}

// UpdateClassInstanceInfo replaces the info payload of a class instance.
func (s *Store) UpdateClassInstanceInfo(_ context.Context, id int64, info []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, ok := s.classInstances[id]
	if !ok {
		return fmt.Errorf("class instance %d: %w", id, store.ErrNotFound)
	}
	ci.Info = info
	s.classInstances[id] = ci
	return nil
}

// Course looks up a course by portal id.
func (s *Store) Course(_ context.Context, id int64) (catalog.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return catalog.Course{}, fmt.Errorf("course %d: %w", id, store.ErrNotFound)
	}
	return c, nil
}

// Courses returns every course ordered by id.
func (s *Store) Courses(_ context.Context) ([]catalog.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CoursesByAbbreviation returns every course carrying the abbreviation.
func (s *Store) CoursesByAbbreviation(_ context.Context, abbreviation string) ([]catalog.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Course
	for _, c := range s.courses {
		if c.Abbreviation == abbreviation {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertCourse stores a new course.
func (s *Store) InsertCourse(_ context.Context, c catalog.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[c.ID]; ok {
		return fmt.Errorf("course %d: %w", c.ID, store.ErrDuplicate)
	}
	s.courses[c.ID] = c
	return nil
}

// UpdateCourse overwrites an existing course.
func (s *Store) UpdateCourse(_ context.Context, c catalog.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[c.ID]; !ok {
		return fmt.Errorf("course %d: %w", c.ID, store.ErrNotFound)
	}
	s.courses[c.ID] = c
	return nil
}

// Teacher looks up a teacher by portal id.
func (s *Store) Teacher(_ context.Context, id int64) (catalog.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[id]
	if !ok {
		return catalog.Teacher{}, fmt.Errorf("teacher %d: %w", id, store.ErrNotFound)
	}
	return s.teacherWithDepartmentsLocked(t), nil
}

func (s *Store) teacherWithDepartmentsLocked(t catalog.Teacher) catalog.Teacher {
	t.DepartmentIDs = nil
	for key := range s.teacherDepartments {
		if key[0] == t.ID {
			t.DepartmentIDs = append(t.DepartmentIDs, key[1])
		}
	}
	sort.Slice(t.DepartmentIDs, func(i, j int) bool { return t.DepartmentIDs[i] < t.DepartmentIDs[j] })
	return t
}

// Teachers returns every teacher ordered by id.
func (s *Store) Teachers(_ context.Context) ([]catalog.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Teacher, 0, len(s.teachers))
	for _, t := range s.teachers {
		out = append(out, s.teacherWithDepartmentsLocked(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TeacherByName resolves a teacher by exact display name.
func (s *Store) TeacherByName(_ context.Context, name string) (catalog.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []catalog.Teacher
	for _, t := range s.teachers {
		if t.Name == name {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return catalog.Teacher{}, fmt.Errorf("teacher %q: %w", name, store.ErrNotFound)
	case 1:
		return s.teacherWithDepartmentsLocked(found[0]), nil
	default:
		return catalog.Teacher{}, fmt.Errorf("teacher %q: several teachers share the name", name)
	}
}

// InsertTeacher stores a new teacher.
func (s *Store) InsertTeacher(_ context.Context, t catalog.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teachers[t.ID]; ok {
		return fmt.Errorf("teacher %d: %w", t.ID, store.ErrDuplicate)
	}
	t.DepartmentIDs = nil
	s.teachers[t.ID] = t
	return nil
}

// UpdateTeacher overwrites an existing teacher.
func (s *Store) UpdateTeacher(_ context.Context, t catalog.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teachers[t.ID]; !ok {
		return fmt.Errorf("teacher %d: %w", t.ID, store.ErrNotFound)
	}
	t.DepartmentIDs = nil
	s.teachers[t.ID] = t
	return nil
}

// LinkTeacherDepartment records the association; re-adding is a no-op.
func (s *Store) LinkTeacherDepartment(_ context.Context, teacherID, departmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teacherDepartments[[2]int64{teacherID, departmentID}] = struct{}{}
	return nil
}

// StudentsByPortalID returns every student row carrying the portal id.
func (s *Store) StudentsByPortalID(_ context.Context, portalID int64) ([]catalog.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Student
	for _, st := range s.students {
		if st.PortalID == portalID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertStudent stores a new student row, returning its id.
func (s *Store) InsertStudent(_ context.Context, st catalog.Student) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Abbreviation != "" {
		for _, existing := range s.students {
			if existing.Abbreviation == st.Abbreviation {
				return 0, fmt.Errorf("student abbreviation %q: %w", st.Abbreviation, store.ErrDuplicate)
			}
		}
	}
	st.ID = s.allocID()
	s.students[st.ID] = st
	return st.ID, nil
}

// UpdateStudent overwrites an existing student row.
func (s *Store) UpdateStudent(_ context.Context, st catalog.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[st.ID]; !ok {
		return fmt.Errorf("student %d: %w", st.ID, store.ErrNotFound)
	}
	s.students[st.ID] = st
	return nil
}

// Admissions returns every admission record ordered by id.
func (s *Store) Admissions(_ context.Context) ([]catalog.Admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Admission, 0, len(s.admissions))
	for _, a := range s.admissions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertAdmission stores a new admission record. Admissions are
// point-in-time snapshots with no natural key, so every insert appends.
func (s *Store) InsertAdmission(_ context.Context, a catalog.Admission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.allocID()
	s.admissions[a.ID] = a
	return nil
}

// EnrollmentByKey resolves an enrollment by its natural key.
func (s *Store) EnrollmentByKey(_ context.Context, studentID, classInstanceID int64) (catalog.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.ClassInstanceID == classInstanceID {
			return e, nil
		}
	}
	return catalog.Enrollment{}, fmt.Errorf("enrollment (%d, %d): %w",
		studentID, classInstanceID, store.ErrNotFound)
}

// InsertEnrollment stores a new enrollment.
func (s *Store) InsertEnrollment(_ context.Context, e catalog.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.enrollments {
		if existing.StudentID == e.StudentID && existing.ClassInstanceID == e.ClassInstanceID {
			return fmt.Errorf("enrollment (%d, %d): %w", e.StudentID, e.ClassInstanceID, store.ErrDuplicate)
		}
	}
	e.ID = s.allocID()
	s.enrollments[e.ID] = e
	return nil
}

// UpdateEnrollment overwrites an existing enrollment.
func (s *Store) UpdateEnrollment(_ context.Context, e catalog.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[e.ID]; !ok {
		return fmt.Errorf("enrollment %d: %w", e.ID, store.ErrNotFound)
	}
	s.enrollments[e.ID] = e
	return nil
}

// BuildingByName resolves a building by name.
func (s *Store) BuildingByName(_ context.Context, name string) (catalog.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buildings {
		if b.Name == name {
			return b, nil
		}
	}
	return catalog.Building{}, fmt.Errorf("building %q: %w", name, store.ErrNotFound)
}

// Buildings returns every building ordered by id.
func (s *Store) Buildings(_ context.Context) ([]catalog.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Building, 0, len(s.buildings))
	for _, b := range s.buildings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertBuilding stores a new building.
func (s *Store) InsertBuilding(_ context.Context, b catalog.Building) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.buildings {
		if existing.Name == b.Name {
			return fmt.Errorf("building %q: %w", b.Name, store.ErrDuplicate)
		}
	}
	if b.ID == 0 {
		b.ID = s.allocID()
	}
	s.buildings[b.ID] = b
	return nil
}

// UpdateBuilding overwrites an existing building.
func (s *Store) UpdateBuilding(_ context.Context, b catalog.Building) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buildings[b.ID]; !ok {
		return fmt.Errorf("building %d: %w", b.ID, store.ErrNotFound)
	}
	s.buildings[b.ID] = b
	return nil
}

// RoomByKey resolves a room by its full natural key.
func (s *Store) RoomByKey(_ context.Context, buildingID int64, name string, roomType catalog.RoomType) (catalog.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.BuildingID == buildingID && r.Name == name && r.Type == roomType {
			return r, nil
		}
	}
	return catalog.Room{}, fmt.Errorf("room (%d, %q, %s): %w", buildingID, name, roomType, store.ErrNotFound)
}

// RoomsByName returns every room with the name inside the building,
// regardless of type.
func (s *Store) RoomsByName(_ context.Context, buildingID int64, name string) ([]catalog.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Room
	for _, r := range s.rooms {
		if r.BuildingID == buildingID && r.Name == name {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Rooms returns every room ordered by id.
func (s *Store) Rooms(_ context.Context) ([]catalog.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertRoom stores a new room.
func (s *Store) InsertRoom(_ context.Context, r catalog.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rooms {
		if existing.BuildingID == r.BuildingID && existing.Name == r.Name && existing.Type == r.Type {
			return fmt.Errorf("room (%d, %q, %s): %w", r.BuildingID, r.Name, r.Type, store.ErrDuplicate)
		}
	}
	if r.ID == 0 {
		r.ID = s.allocID()
	}
	s.rooms[r.ID] = r
	return nil
}

// TurnByKey resolves a turn by its natural key.
func (s *Store) TurnByKey(_ context.Context, classInstanceID int64, number int, typeID int64) (catalog.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns {
		if t.ClassInstanceID == classInstanceID && t.Number == number && t.TypeID == typeID {
			return s.turnWithLinksLocked(t), nil
		}
	}
	return catalog.Turn{}, fmt.Errorf("turn (%d, %d, %d): %w",
		classInstanceID, number, typeID, store.ErrNotFound)
}

func (s *Store) turnWithLinksLocked(t catalog.Turn) catalog.Turn {
	t.TeacherIDs = nil
	t.StudentIDs = nil
	for key := range s.turnTeachers {
		if key[0] == t.ID {
			t.TeacherIDs = append(t.TeacherIDs, key[1])
		}
	}
	for key := range s.turnStudents {
		if key[0] == t.ID {
			t.StudentIDs = append(t.StudentIDs, key[1])
		}
	}
	sort.Slice(t.TeacherIDs, func(i, j int) bool { return t.TeacherIDs[i] < t.TeacherIDs[j] })
	sort.Slice(t.StudentIDs, func(i, j int) bool { return t.StudentIDs[i] < t.StudentIDs[j] })
	return t
}

// InsertTurn stores a new turn, returning its id.
func (s *Store) InsertTurn(_ context.Context, t catalog.Turn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.turns {
		if existing.ClassInstanceID == t.ClassInstanceID && existing.Number == t.Number && existing.TypeID == t.TypeID {
			return 0, fmt.Errorf("turn (%d, %d, %d): %w",
				t.ClassInstanceID, t.Number, t.TypeID, store.ErrDuplicate)
		}
	}
	t.ID = s.allocID()
	t.TeacherIDs = nil
	t.StudentIDs = nil
	s.turns[t.ID] = t
	return t.ID, nil
}

// UpdateTurn overwrites an existing turn.
func (s *Store) UpdateTurn(_ context.Context, t catalog.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns[t.ID]; !ok {
		return fmt.Errorf("turn %d: %w", t.ID, store.ErrNotFound)
	}
	t.TeacherIDs = nil
	t.StudentIDs = nil
	s.turns[t.ID] = t
	return nil
}

// LinkTurnTeacher records the association; re-adding is a no-op.
func (s *Store) LinkTurnTeacher(_ context.Context, turnID, teacherID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnTeachers[[2]int64{turnID, teacherID}] = struct{}{}
	return nil
}

// LinkTurnStudent records the association; re-adding is a no-op.
func (s *Store) LinkTurnStudent(_ context.Context, turnID, studentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnStudents[[2]int64{turnID, studentID}] = struct{}{}
	return nil
}

// TurnInstances returns the weekly slots of a turn ordered by weekday.
func (s *Store) TurnInstances(_ context.Context, turnID int64) ([]catalog.TurnInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.TurnInstance
	for _, ti := range s.turnInstances {
		if ti.TurnID == turnID {
			out = append(out, ti)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// InsertTurnInstance stores a new weekly slot.
func (s *Store) InsertTurnInstance(_ context.Context, ti catalog.TurnInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.turnInstances {
		if existing.TurnID == ti.TurnID && existing.Start == ti.Start && existing.Weekday == ti.Weekday {
			return fmt.Errorf("turn instance (%d, %d, %s): %w",
				ti.TurnID, ti.Start, ti.Weekday, store.ErrDuplicate)
		}
	}
	ti.ID = s.allocID()
	s.turnInstances[ti.ID] = ti
	return nil
}

// UpdateTurnInstanceRoom moves a slot to another room.
func (s *Store) UpdateTurnInstanceRoom(_ context.Context, id, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ti, ok := s.turnInstances[id]
	if !ok {
		return fmt.Errorf("turn instance %d: %w", id, store.ErrNotFound)
	}
	ti.RoomID = roomID
	s.turnInstances[id] = ti
	return nil
}

// DeleteTurnInstance removes one slot.
func (s *Store) DeleteTurnInstance(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turnInstances[id]; !ok {
		return fmt.Errorf("turn instance %d: %w", id, store.ErrNotFound)
	}
	delete(s.turnInstances, id)
	return nil
}

// DeleteTurnInstances removes every slot of a turn.
func (s *Store) DeleteTurnInstances(_ context.Context, turnID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, ti := range s.turnInstances {
		if ti.TurnID == turnID {
			delete(s.turnInstances, id)
			deleted++
		}
	}
	return deleted, nil
}

// EntityCounts reports row counts per collection.
func (s *Store) EntityCounts(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int64{
		"institutions":    int64(len(s.institutions)),
		"departments":     int64(len(s.departments)),
		"classes":         int64(len(s.classes)),
		"class_instances": int64(len(s.classInstances)),
		"courses":         int64(len(s.courses)),
		"teachers":        int64(len(s.teachers)),
		"students":        int64(len(s.students)),
		"admissions":      int64(len(s.admissions)),
		"enrollments":     int64(len(s.enrollments)),
		"buildings":       int64(len(s.buildings)),
		"rooms":           int64(len(s.rooms)),
		"turns":           int64(len(s.turns)),
		"turn_instances":  int64(len(s.turnInstances)),
	}, nil
}

// StartCrawlRun records the start of a crawl phase.
func (s *Store) StartCrawlRun(_ context.Context, run store.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.crawlRuns[run.ID]; ok {
		return fmt.Errorf("crawl run %s: %w", run.ID, store.ErrDuplicate)
	}
	s.crawlRuns[run.ID] = run
	return nil
}

// FinishCrawlRun closes a crawl-phase record.
func (s *Store) FinishCrawlRun(_ context.Context, id string, finishedAt time.Time, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.crawlRuns[id]
	if !ok {
		return fmt.Errorf("crawl run %s: %w", id, store.ErrNotFound)
	}
	run.FinishedAt = &finishedAt
	run.ErrorText = errText
	s.crawlRuns[id] = run
	return nil
}
