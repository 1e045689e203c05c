package postgres

import (
	"context"
	"fmt"

	"github.com/opencampus/portal-crawler/internal/catalog"
)

// Degrees returns every degree ordered by id.
func (s *Store) Degrees(ctx context.Context) ([]catalog.Degree, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portal_code, name FROM degrees ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select degrees", err)
	}
	defer rows.Close()
	var out []catalog.Degree
	for rows.Next() {
		var d catalog.Degree
		if err := rows.Scan(&d.ID, &d.PortalCode, &d.Name); err != nil {
			return nil, wrapErr("scan degree", err)
		}
		out = append(out, d)
	}
	return out, wrapErr("select degrees", rows.Err())
}

// InsertDegree stores a degree.
func (s *Store) InsertDegree(ctx context.Context, d catalog.Degree) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO degrees (id, portal_code, name) VALUES ($1, $2, $3)`,
		d.ID, d.PortalCode, d.Name)
	return wrapErr(fmt.Sprintf("insert degree %d", d.ID), err)
}

// Periods returns every period ordered by id.
func (s *Store) Periods(ctx context.Context) ([]catalog.Period, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, part, parts, letter FROM periods ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select periods", err)
	}
	defer rows.Close()
	var out []catalog.Period
	for rows.Next() {
		var p catalog.Period
		if err := rows.Scan(&p.ID, &p.Part, &p.Parts, &p.Letter); err != nil {
			return nil, wrapErr("scan period", err)
		}
		out = append(out, p)
	}
	return out, wrapErr("select periods", rows.Err())
}

// InsertPeriod stores a period.
func (s *Store) InsertPeriod(ctx context.Context, p catalog.Period) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO periods (part, parts, letter) VALUES ($1, $2, $3)`,
		p.Part, p.Parts, p.Letter)
	return wrapErr(fmt.Sprintf("insert period %d/%d", p.Part, p.Parts), err)
}

// TurnTypes returns every turn type ordered by id.
func (s *Store) TurnTypes(ctx context.Context) ([]catalog.TurnType, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, abbreviation FROM turn_types ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select turn types", err)
	}
	defer rows.Close()
	var out []catalog.TurnType
	for rows.Next() {
		var t catalog.TurnType
		if err := rows.Scan(&t.ID, &t.Name, &t.Abbreviation); err != nil {
			return nil, wrapErr("scan turn type", err)
		}
		out = append(out, t)
	}
	return out, wrapErr("select turn types", rows.Err())
}

// InsertTurnType stores a turn type.
func (s *Store) InsertTurnType(ctx context.Context, t catalog.TurnType) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turn_types (name, abbreviation) VALUES ($1, $2)`,
		t.Name, t.Abbreviation)
	return wrapErr(fmt.Sprintf("insert turn type %q", t.Abbreviation), err)
}

// Institution looks up an institution by portal id.
func (s *Store) Institution(ctx context.Context, id int64) (catalog.Institution, error) {
	var i catalog.Institution
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, abbreviation, first_year, last_year
		 FROM institutions WHERE id = $1`, id).
		Scan(&i.ID, &i.Name, &i.Abbreviation, &i.FirstYear, &i.LastYear)
	return i, wrapErr(fmt.Sprintf("select institution %d", id), err)
}

// Institutions returns every institution ordered by id.
func (s *Store) Institutions(ctx context.Context) ([]catalog.Institution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, abbreviation, first_year, last_year
		 FROM institutions ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select institutions", err)
	}
	defer rows.Close()
	var out []catalog.Institution
	for rows.Next() {
		var i catalog.Institution
		if err := rows.Scan(&i.ID, &i.Name, &i.Abbreviation, &i.FirstYear, &i.LastYear); err != nil {
			return nil, wrapErr("scan institution", err)
		}
		out = append(out, i)
	}
	return out, wrapErr("select institutions", rows.Err())
}

// InsertInstitution stores a new institution.
func (s *Store) InsertInstitution(ctx context.Context, i catalog.Institution) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO institutions (id, name, abbreviation, first_year, last_year)
		 VALUES ($1, $2, $3, $4, $5)`,
		i.ID, i.Name, i.Abbreviation, i.FirstYear, i.LastYear)
	return wrapErr(fmt.Sprintf("insert institution %d", i.ID), err)
}

// UpdateInstitution overwrites an existing institution.
func (s *Store) UpdateInstitution(ctx context.Context, i catalog.Institution) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE institutions
		 SET name = $2, abbreviation = $3, first_year = $4, last_year = $5
		 WHERE id = $1`,
		i.ID, i.Name, i.Abbreviation, i.FirstYear, i.LastYear)
	return wrapErr(fmt.Sprintf("update institution %d", i.ID), err)
}

// Department looks up a department by portal id.
func (s *Store) Department(ctx context.Context, id int64) (catalog.Department, error) {
	var d catalog.Department
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, institution_id, first_year, last_year
		 FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.InstitutionID, &d.FirstYear, &d.LastYear)
	return d, wrapErr(fmt.Sprintf("select department %d", id), err)
}

// Departments returns every department ordered by id.
func (s *Store) Departments(ctx context.Context) ([]catalog.Department, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, institution_id, first_year, last_year
		 FROM departments ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select departments", err)
	}
	defer rows.Close()
	var out []catalog.Department
	for rows.Next() {
		var d catalog.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.InstitutionID, &d.FirstYear, &d.LastYear); err != nil {
			return nil, wrapErr("scan department", err)
		}
		out = append(out, d)
	}
	return out, wrapErr("select departments", rows.Err())
}

// InsertDepartment stores a new department.
func (s *Store) InsertDepartment(ctx context.Context, d catalog.Department) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO departments (id, name, institution_id, first_year, last_year)
		 VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.Name, d.InstitutionID, d.FirstYear, d.LastYear)
	return wrapErr(fmt.Sprintf("insert department %d", d.ID), err)
}

// UpdateDepartment overwrites an existing department.
func (s *Store) UpdateDepartment(ctx context.Context, d catalog.Department) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE departments
		 SET name = $2, institution_id = $3, first_year = $4, last_year = $5
		 WHERE id = $1`,
		d.ID, d.Name, d.InstitutionID, d.FirstYear, d.LastYear)
	return wrapErr(fmt.Sprintf("update department %d", d.ID), err)
}

// Class looks up a class by portal id.
func (s *Store) Class(ctx context.Context, id int64) (catalog.Class, error) {
	var c catalog.Class
	err := s.pool.QueryRow(ctx,
		`SELECT id, department_id, name, abbreviation, ects
		 FROM classes WHERE id = $1`, id).
		Scan(&c.ID, &c.DepartmentID, &c.Name, &c.Abbreviation, &c.ECTS)
	return c, wrapErr(fmt.Sprintf("select class %d", id), err)
}

// Classes returns every class ordered by id.
func (s *Store) Classes(ctx context.Context) ([]catalog.Class, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, department_id, name, abbreviation, ects FROM classes ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select classes", err)
	}
	defer rows.Close()
	var out []catalog.Class
	for rows.Next() {
		var c catalog.Class
		if err := rows.Scan(&c.ID, &c.DepartmentID, &c.Name, &c.Abbreviation, &c.ECTS); err != nil {
			return nil, wrapErr("scan class", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("select classes", rows.Err())
}

// InsertClass stores a new class.
func (s *Store) InsertClass(ctx context.Context, c catalog.Class) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO classes (id, department_id, name, abbreviation, ects)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.DepartmentID, c.Name, c.Abbreviation, c.ECTS)
	return wrapErr(fmt.Sprintf("insert class %d", c.ID), err)
}

// UpdateClass overwrites an existing class.
func (s *Store) UpdateClass(ctx context.Context, c catalog.Class) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE classes
		 SET department_id = $2, name = $3, abbreviation = $4, ects = $5
		 WHERE id = $1`,
		c.ID, c.DepartmentID, c.Name, c.Abbreviation, c.ECTS)
	return wrapErr(fmt.Sprintf("update class %d", c.ID), err)
}

// ClassInstanceByKey resolves a class instance by its natural key.
func (s *Store) ClassInstanceByKey(ctx context.Context, classID int64, year int, periodID int64) (catalog.ClassInstance, error) {
	var ci catalog.ClassInstance
	err := s.pool.QueryRow(ctx,
		`SELECT id, class_id, period_id, year, info
		 FROM class_instances WHERE class_id = $1 AND year = $2 AND period_id = $3`,
		classID, year, periodID).
		Scan(&ci.ID, &ci.ClassID, &ci.PeriodID, &ci.Year, &ci.Info)
	return ci, wrapErr(fmt.Sprintf("select class instance (%d, %d, %d)", classID, year, periodID), err)
}

// ClassInstances returns every class instance ordered by year then id.
func (s *Store) ClassInstances(ctx context.Context) ([]catalog.ClassInstance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, class_id, period_id, year, info
		 FROM class_instances ORDER BY year, id`)
	if err != nil {
		return nil, wrapErr("select class instances", err)
	}
	defer rows.Close()
	var out []catalog.ClassInstance
	for rows.Next() {
		var ci catalog.ClassInstance
		if err := rows.Scan(&ci.ID, &ci.ClassID, &ci.PeriodID, &ci.Year, &ci.Info); err != nil {
			return nil, wrapErr("scan class instance", err)
		}
		out = append(out, ci)
	}
	return out, wrapErr("select class instances", rows.Err())
}

// InsertClassInstance stores a new class instance, returning its id.
func (s *Store) InsertClassInstance(ctx context.Context, ci catalog.ClassInstance) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO class_instances (class_id, period_id, year, info)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		ci.ClassID, ci.PeriodID, ci.Year, ci.Info).Scan(&id)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("insert class instance (%d, %d, %d)",
			ci.ClassID, ci.Year, ci.PeriodID), err)
	}
	return id, nil
}

// UpdateClassInstanceInfo replaces the info payload of a class instance.
func (s *Store) UpdateClassInstanceInfo(ctx context.Context, id int64, info []byte) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE class_instances SET info = $2 WHERE id = $1`, id, info)
	return wrapErr(fmt.Sprintf("update class instance %d info", id), err)
}

// Course looks up a course by portal id.
func (s *Store) Course(ctx context.Context, id int64) (catalog.Course, error) {
	var c catalog.Course
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, abbreviation, degree_id, institution_id, first_year, last_year
		 FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Abbreviation, &scanInt64{&c.DegreeID},
			&scanInt64{&c.InstitutionID}, &c.FirstYear, &c.LastYear)
	return c, wrapErr(fmt.Sprintf("select course %d", id), err)
}

// Courses returns every course ordered by id.
func (s *Store) Courses(ctx context.Context) ([]catalog.Course, error) {
	return s.selectCourses(ctx,
		`SELECT id, name, abbreviation, degree_id, institution_id, first_year, last_year
		 FROM courses ORDER BY id`)
}

// CoursesByAbbreviation returns every course carrying the abbreviation.
func (s *Store) CoursesByAbbreviation(ctx context.Context, abbreviation string) ([]catalog.Course, error) {
	return s.selectCourses(ctx,
		`SELECT id, name, abbreviation, degree_id, institution_id, first_year, last_year
		 FROM courses WHERE abbreviation = $1 ORDER BY id`, abbreviation)
}

func (s *Store) selectCourses(ctx context.Context, query string, args ...any) ([]catalog.Course, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("select courses", err)
	}
	defer rows.Close()
	var out []catalog.Course
	for rows.Next() {
		var c catalog.Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Abbreviation, &scanInt64{&c.DegreeID},
			&scanInt64{&c.InstitutionID}, &c.FirstYear, &c.LastYear); err != nil {
			return nil, wrapErr("scan course", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("select courses", rows.Err())
}

// InsertCourse stores a new course.
func (s *Store) InsertCourse(ctx context.Context, c catalog.Course) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO courses (id, name, abbreviation, degree_id, institution_id, first_year, last_year)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Abbreviation, nullInt64(c.DegreeID),
		nullInt64(c.InstitutionID), c.FirstYear, c.LastYear)
	return wrapErr(fmt.Sprintf("insert course %d", c.ID), err)
}

// UpdateCourse overwrites an existing course.
func (s *Store) UpdateCourse(ctx context.Context, c catalog.Course) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE courses
		 SET name = $2, abbreviation = $3, degree_id = $4, institution_id = $5,
		     first_year = $6, last_year = $7
		 WHERE id = $1`,
		c.ID, c.Name, c.Abbreviation, nullInt64(c.DegreeID),
		nullInt64(c.InstitutionID), c.FirstYear, c.LastYear)
	return wrapErr(fmt.Sprintf("update course %d", c.ID), err)
}
