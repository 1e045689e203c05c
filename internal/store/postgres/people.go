package postgres

import (
	"context"
	"fmt"

	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/store"
)

// Teacher looks up a teacher by portal id, including department links.
func (s *Store) Teacher(ctx context.Context, id int64) (catalog.Teacher, error) {
	var t catalog.Teacher
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, first_year, last_year FROM teachers WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.FirstYear, &t.LastYear)
	if err != nil {
		return catalog.Teacher{}, wrapErr(fmt.Sprintf("select teacher %d", id), err)
	}
	t.DepartmentIDs, err = s.teacherDepartments(ctx, t.ID)
	if err != nil {
		return catalog.Teacher{}, err
	}
	return t, nil
}

func (s *Store) teacherDepartments(ctx context.Context, teacherID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT department_id FROM teacher_departments
		 WHERE teacher_id = $1 ORDER BY department_id`, teacherID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("select teacher %d departments", teacherID), err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan teacher department", err)
		}
		out = append(out, id)
	}
	return out, wrapErr(fmt.Sprintf("select teacher %d departments", teacherID), rows.Err())
}

// Teachers returns every teacher ordered by id. Department links are not
// populated here; the cached lookup resolves them lazily when needed.
func (s *Store) Teachers(ctx context.Context) ([]catalog.Teacher, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, first_year, last_year FROM teachers ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select teachers", err)
	}
	defer rows.Close()
	var out []catalog.Teacher
	for rows.Next() {
		var t catalog.Teacher
		if err := rows.Scan(&t.ID, &t.Name, &t.FirstYear, &t.LastYear); err != nil {
			return nil, wrapErr("scan teacher", err)
		}
		out = append(out, t)
	}
	return out, wrapErr("select teachers", rows.Err())
}

// TeacherByName resolves a teacher by exact display name. Multiple matches
// are an error since the caller cannot tell them apart.
func (s *Store) TeacherByName(ctx context.Context, name string) (catalog.Teacher, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, first_year, last_year FROM teachers WHERE name = $1`, name)
	if err != nil {
		return catalog.Teacher{}, wrapErr(fmt.Sprintf("select teacher %q", name), err)
	}
	defer rows.Close()
	var found []catalog.Teacher
	for rows.Next() {
		var t catalog.Teacher
		if err := rows.Scan(&t.ID, &t.Name, &t.FirstYear, &t.LastYear); err != nil {
			return catalog.Teacher{}, wrapErr("scan teacher", err)
		}
		found = append(found, t)
	}
	if err := rows.Err(); err != nil {
		return catalog.Teacher{}, wrapErr(fmt.Sprintf("select teacher %q", name), err)
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

// InsertTeacher stores a new teacher.
func (s *Store) InsertTeacher(ctx context.Context, t catalog.Teacher) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO teachers (id, name, first_year, last_year) VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, t.FirstYear, t.LastYear)
	return wrapErr(fmt.Sprintf("insert teacher %d", t.ID), err)
}

// UpdateTeacher overwrites an existing teacher.
func (s *Store) UpdateTeacher(ctx context.Context, t catalog.Teacher) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE teachers SET name = $2, first_year = $3, last_year = $4 WHERE id = $1`,
		t.ID, t.Name, t.FirstYear, t.LastYear)
	return wrapErr(fmt.Sprintf("update teacher %d", t.ID), err)
}

// LinkTeacherDepartment records the association; re-adding is a no-op.
func (s *Store) LinkTeacherDepartment(ctx context.Context, teacherID, departmentID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO teacher_departments (teacher_id, department_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		teacherID, departmentID)
	return wrapErr(fmt.Sprintf("link teacher %d department %d", teacherID, departmentID), err)
}

// StudentsByPortalID returns every student row carrying the portal id.
func (s *Store) StudentsByPortalID(ctx context.Context, portalID int64) ([]catalog.Student, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portal_id, name, COALESCE(abbreviation, ''), course_id,
		        institution_id, first_year, last_year
		 FROM students WHERE portal_id = $1 ORDER BY id`, portalID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("select students %d", portalID), err)
	}
	defer rows.Close()
	var out []catalog.Student
	for rows.Next() {
		var st catalog.Student
		if err := rows.Scan(&st.ID, &st.PortalID, &st.Name, &st.Abbreviation,
			&scanInt64{&st.CourseID}, &scanInt64{&st.InstitutionID},
			&st.FirstYear, &st.LastYear); err != nil {
			return nil, wrapErr("scan student", err)
		}
		out = append(out, st)
	}
	return out, wrapErr(fmt.Sprintf("select students %d", portalID), rows.Err())
}

// InsertStudent stores a new student row, returning its id. An empty
// abbreviation is stored as NULL so the partial unique index ignores it.
func (s *Store) InsertStudent(ctx context.Context, st catalog.Student) (int64, error) {
	var abbr any
	if st.Abbreviation != "" {
		abbr = st.Abbreviation
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO students (portal_id, name, abbreviation, course_id, institution_id, first_year, last_year)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		st.PortalID, st.Name, abbr, nullInt64(st.CourseID),
		nullInt64(st.InstitutionID), st.FirstYear, st.LastYear).Scan(&id)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("insert student %d", st.PortalID), err)
	}
	return id, nil
}

// UpdateStudent overwrites an existing student row.
func (s *Store) UpdateStudent(ctx context.Context, st catalog.Student) error {
	var abbr any
	if st.Abbreviation != "" {
		abbr = st.Abbreviation
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE students
		 SET portal_id = $2, name = $3, abbreviation = $4, course_id = $5,
		     institution_id = $6, first_year = $7, last_year = $8
		 WHERE id = $1`,
		st.ID, st.PortalID, st.Name, abbr, nullInt64(st.CourseID),
		nullInt64(st.InstitutionID), st.FirstYear, st.LastYear)
	return wrapErr(fmt.Sprintf("update student %d", st.ID), err)
}

// Admissions returns every admission record ordered by id.
func (s *Store) Admissions(ctx context.Context) ([]catalog.Admission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, name, course_id, phase, year, option, state, check_date
		 FROM admissions ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select admissions", err)
	}
	defer rows.Close()
	var out []catalog.Admission
	for rows.Next() {
		var a catalog.Admission
		if err := rows.Scan(&a.ID, &scanInt64{&a.StudentID}, &a.Name,
			&scanInt64{&a.CourseID}, &a.Phase, &a.Year, &a.Option,
			&a.State, &a.CheckDate); err != nil {
			return nil, wrapErr("scan admission", err)
		}
		out = append(out, a)
	}
	return out, wrapErr("select admissions", rows.Err())
}

// InsertAdmission stores a new admission record.
func (s *Store) InsertAdmission(ctx context.Context, a catalog.Admission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admissions (student_id, name, course_id, phase, year, option, state, check_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		nullInt64(a.StudentID), a.Name, nullInt64(a.CourseID),
		a.Phase, a.Year, a.Option, a.State, a.CheckDate)
	return wrapErr(fmt.Sprintf("insert admission %q %d", a.Name, a.Year), err)
}

// EnrollmentByKey resolves an enrollment by its natural key.
func (s *Store) EnrollmentByKey(ctx context.Context, studentID, classInstanceID int64) (catalog.Enrollment, error) {
	var e catalog.Enrollment
	err := s.pool.QueryRow(ctx,
		`SELECT id, student_id, class_instance_id, attempt, student_year, statutes, observation
		 FROM enrollments WHERE student_id = $1 AND class_instance_id = $2`,
		studentID, classInstanceID).
		Scan(&e.ID, &e.StudentID, &e.ClassInstanceID, &e.Attempt,
			&e.StudentYear, &e.Statutes, &e.Observation)
	return e, wrapErr(fmt.Sprintf("select enrollment (%d, %d)", studentID, classInstanceID), err)
}

// InsertEnrollment stores a new enrollment.
func (s *Store) InsertEnrollment(ctx context.Context, e catalog.Enrollment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrollments (student_id, class_instance_id, attempt, student_year, statutes, observation)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.StudentID, e.ClassInstanceID, e.Attempt, e.StudentYear, e.Statutes, e.Observation)
	return wrapErr(fmt.Sprintf("insert enrollment (%d, %d)", e.StudentID, e.ClassInstanceID), err)
}

// UpdateEnrollment overwrites an existing enrollment.
func (s *Store) UpdateEnrollment(ctx context.Context, e catalog.Enrollment) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrollments
		 SET attempt = $2, student_year = $3, statutes = $4, observation = $5
		 WHERE id = $1`,
		e.ID, e.Attempt, e.StudentYear, e.Statutes, e.Observation)
	return wrapErr(fmt.Sprintf("update enrollment %d", e.ID), err)
}
