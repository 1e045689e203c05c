package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// URLs builds portal page addresses. All portal pages hang off a base URL
// and select their subject through query parameters.
type URLs struct {
	base string
}

// NewURLs builds a URL set for the given portal root.
func NewURLs(base string) *URLs {
	return &URLs{base: strings.TrimRight(base, "/")}
}

func (u *URLs) page(path string, params url.Values) string {
	if len(params) == 0 {
		return u.base + path
	}
	return u.base + path + "?" + params.Encode()
}

// Institutions is the top-level hierarchy page, which also carries the
// academic-year selector.
func (u *URLs) Institutions() string {
	return u.page("/institutions", nil)
}

// Departments lists an institution's departments for one academic year.
func (u *URLs) Departments(institutionID int64, year int) string {
	return u.page("/departments", url.Values{
		"institution": {fmt.Sprint(institutionID)},
		"year":        {fmt.Sprint(year)},
	})
}

// Classes lists a department's classes for one year and period.
func (u *URLs) Classes(departmentID int64, year int, period string) string {
	return u.page("/classes", url.Values{
		"department": {fmt.Sprint(departmentID)},
		"year":       {fmt.Sprint(year)},
		"period":     {period},
	})
}

// DepartmentPeriods is the department page carrying the period tabs for one
// year.
func (u *URLs) DepartmentPeriods(departmentID int64, year int) string {
	return u.page("/department", url.Values{
		"department": {fmt.Sprint(departmentID)},
		"year":       {fmt.Sprint(year)},
	})
}

// Teachers lists a department's teachers for one academic year.
func (u *URLs) Teachers(departmentID int64, year int) string {
	return u.page("/teachers", url.Values{
		"department": {fmt.Sprint(departmentID)},
		"year":       {fmt.Sprint(year)},
	})
}

// Class is a class occurrence page: header, free-text sections and turn
// links for one (year, period).
func (u *URLs) Class(classID int64, year int, period string) string {
	return u.page("/class", url.Values{
		"class":  {fmt.Sprint(classID)},
		"year":   {fmt.Sprint(year)},
		"period": {period},
	})
}

// Courses lists an institution's degree programs.
func (u *URLs) Courses(institutionID int64) string {
	return u.page("/courses", url.Values{
		"institution": {fmt.Sprint(institutionID)},
	})
}

// CurricularPlan is a course's curricular-plan page, which lists the
// academic years the plan has been active.
func (u *URLs) CurricularPlan(institutionID, courseID int64) string {
	return u.page("/curriculum", url.Values{
		"institution": {fmt.Sprint(institutionID)},
		"course":      {fmt.Sprint(courseID)},
	})
}

// Admissions is a course's national-contest results page for one year and
// contest phase.
func (u *URLs) Admissions(courseID int64, year, phase int) string {
	return u.page("/admissions", url.Values{
		"course": {fmt.Sprint(courseID)},
		"year":   {fmt.Sprint(year)},
		"phase":  {fmt.Sprint(phase)},
	})
}

// Enrollments lists the students enrolled to a class occurrence.
func (u *URLs) Enrollments(classID int64, year int, period string) string {
	return u.page("/enrollments", url.Values{
		"class":  {fmt.Sprint(classID)},
		"year":   {fmt.Sprint(year)},
		"period": {period},
	})
}

// Turn is a turn detail page: capacity block, weekly slots, teachers and
// enrolled students.
func (u *URLs) Turn(classID int64, year int, period, label string) string {
	return u.page("/turn", url.Values{
		"class":  {fmt.Sprint(classID)},
		"year":   {fmt.Sprint(year)},
		"period": {period},
		"turn":   {label},
	})
}

// Schedule is the campus-wide building and room listing for one year.
func (u *URLs) Schedule(year int) string {
	return u.page("/schedule", url.Values{
		"year": {fmt.Sprint(year)},
	})
}
