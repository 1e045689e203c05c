package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-crawler/internal/catalog"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestInstitutions(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><table id="institutions">
		<tr><td><a href="?institution=97158">Faculty of Sciences</a></td><td>FC</td></tr>
		<tr><td><a href="?institution=97747">School of Economics</a></td><td>SE</td></tr>
		<tr><td>header junk without a link</td></tr>
	</table></body></html>`)

	rows := Institutions(page)
	require.Equal(t, []InstitutionRow{
		{ID: 97158, Name: "Faculty of Sciences", Abbreviation: "FC"},
		{ID: 97747, Name: "School of Economics", Abbreviation: "SE"},
	}, rows)
}

func TestYears(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><select name="year">
		<option value="">pick a year</option>
		<option value="2003">2003/2004</option>
		<option value="2004" selected>2004/2005</option>
	</select></body></html>`)

	require.Equal(t, []int{2003, 2004}, Years(page))
}

func TestDepartmentsAndClasses(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body>
		<table id="departments">
			<tr><td><a href="?department=9">Informatics</a></td></tr>
			<tr><td><a href="?department=12">Mathematics</a></td></tr>
		</table>
		<ul id="periods">
			<li><a href="?department=9&period=s1">1st semester</a></li>
			<li><a href="?department=9&period=s2">2nd semester</a></li>
		</ul>
		<table id="classes">
			<tr><td><a href="?class=41000">Algorithms</a></td></tr>
		</table>
	</body></html>`)

	require.Equal(t, []DepartmentRow{
		{ID: 9, Name: "Informatics"},
		{ID: 12, Name: "Mathematics"},
	}, Departments(page))
	require.Equal(t, []string{"s1", "s2"}, PeriodLetters(page))
	require.Equal(t, []ClassRow{{ID: 41000, Name: "Algorithms"}}, Classes(page))
}

func TestClassHeaderDoublesHalfCredits(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><div id="class">
		<h1>Operating Systems (os)</h1>
		<span class="ects">7.5</span>
		<div class="section"><h2>Program</h2><div class="body">Processes, scheduling.</div></div>
		<div class="section"><h2>Bibliography</h2><div class="body">Tanenbaum.</div></div>
	</div></body></html>`)

	d, err := ClassHeader(page)
	require.NoError(t, err)
	require.Equal(t, ClassDetail{Name: "Operating Systems", Abbreviation: "os", ECTS: 15}, d)

	require.Equal(t, map[string]string{
		"Program":      "Processes, scheduling.",
		"Bibliography": "Tanenbaum.",
	}, ClassSections(page))
}

func TestClassHeaderWithoutAbbreviation(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><div id="class"><h1>Linear Algebra</h1></div></body></html>`)
	d, err := ClassHeader(page)
	require.NoError(t, err)
	require.Equal(t, ClassDetail{Name: "Linear Algebra"}, d)
}

func TestClassHeaderRejectsBadCredits(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><div id="class">
		<h1>Physics I</h1><span class="ects">six</span>
	</div></body></html>`)
	_, err := ClassHeader(page)
	require.Error(t, err)
}

func TestCourses(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><table id="courses">
		<tr><td><a href="?course=1011">Computer Science</a></td><td>cs</td><td>L</td></tr>
		<tr><td><a href="?course=2022">Computer Science</a></td><td>cs</td><td>MI</td></tr>
	</table></body></html>`)

	require.Equal(t, []CourseRow{
		{ID: 1011, Name: "Computer Science", Abbreviation: "cs", DegreeCode: "L"},
		{ID: 2022, Name: "Computer Science", Abbreviation: "cs", DegreeCode: "MI"},
	}, Courses(page))
}

func TestCourseYears(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><ul id="plan-years">
		<li>2019</li>
		<li>2015</li>
		<li>2023</li>
		<li>not a year</li>
	</ul></body></html>`)

	first, last := CourseYears(page)
	require.Equal(t, 2015, first)
	require.Equal(t, 2023, last)

	first, last = CourseYears(doc(t, `<html><body></body></html>`))
	require.Zero(t, first)
	require.Zero(t, last)
}

func TestTeachers(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><table id="teachers">
		<tr><td><a href="?teacher=301">Ana Costa</a></td></tr>
	</table></body></html>`)
	require.Equal(t, []TeacherRow{{ID: 301, Name: "Ana Costa"}}, Teachers(page))
}

func TestRoomsGroupsByBuilding(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body>
		<div class="building"><h3>Building VII</h3><table><tr>
			<td class="room" data-type="laboratory">127</td>
			<td class="room" data-type="classroom">127</td>
		</tr></table></div>
		<div class="building"><h3>Building II</h3><table><tr>
			<td class="room">201</td>
		</tr></table></div>
	</body></html>`)

	require.Equal(t, []RoomRow{
		{Building: "Building VII", Name: "127", Type: catalog.RoomLaboratory},
		{Building: "Building VII", Name: "127", Type: catalog.RoomClassroom},
		{Building: "Building II", Name: "201"},
	}, Rooms(page))
}

func TestAdmissions(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><table id="admissions">
		<tr><th>Option</th><th>Number</th><th>Name</th><th>State</th></tr>
		<tr><td>1</td><td><a href="?student=55512">55512</a></td><td>Rui Gomes</td><td>enrolled</td></tr>
		<tr><td>3</td><td></td><td>Marta Pires</td><td>declined</td></tr>
	</table></body></html>`)

	require.Equal(t, []AdmissionRow{
		{Option: 1, StudentID: 55512, Name: "Rui Gomes", State: "enrolled"},
		{Option: 3, StudentID: 0, Name: "Marta Pires", State: "declined"},
	}, Admissions(page))
}

func TestEnrollments(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><table id="enrollments">
		<tr><td><a href="?student=55512">Rui Gomes</a></td><td>rg</td><td>cs</td><td>2</td><td>1</td><td>working student</td></tr>
		<tr><td><a href="?student=55900">Marta Pires</a></td><td></td><td>cs</td><td>1</td><td>2</td><td></td></tr>
	</table></body></html>`)

	require.Equal(t, []EnrollmentRow{
		{StudentID: 55512, Name: "Rui Gomes", Abbreviation: "rg", CourseAbbr: "cs",
			StudentYear: 2, Attempt: 1, Statutes: "working student"},
		{StudentID: 55900, Name: "Marta Pires", CourseAbbr: "cs", StudentYear: 1, Attempt: 2},
	}, Enrollments(page))
}

func TestTurnRefs(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><ul id="turns">
		<li><a href="?turn=t1">T1</a></li>
		<li><a href="?turn=tp12">tp12</a></li>
		<li><a href="?turn=weird">weird</a></li>
	</ul></body></html>`)

	require.Equal(t, []TurnRef{
		{TypeAbbreviation: "t", Number: 1},
		{TypeAbbreviation: "tp", Number: 12},
	}, TurnRefs(page))
}

func TestSplitTurnLabel(t *testing.T) {
	t.Parallel()

	ref, err := SplitTurnLabel("TP2")
	require.NoError(t, err)
	require.Equal(t, TurnRef{TypeAbbreviation: "tp", Number: 2}, ref)

	_, err = SplitTurnLabel("42")
	require.Error(t, err)
	_, err = SplitTurnLabel("tp")
	require.Error(t, err)
}

func TestTurnDetail(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body>
		<div id="turn">
			<span class="enrolled">24</span>
			<span class="capacity">30</span>
			<span class="minutes">120</span>
			<span class="state">open</span>
			<span class="restrictions">2nd year and above</span>
		</div>
		<ul id="turn-teachers"><li>Ana Costa</li><li>Pedro Silva</li></ul>
		<table id="slots">
			<tr class="slot"><td>Monday</td><td>09:00</td><td>11:00</td>
				<td data-type="laboratory">Building VII &gt; 127</td></tr>
			<tr class="slot"><td>Wednesday</td><td>14:30</td><td>16:00</td><td></td></tr>
		</table>
	</body></html>`)

	d, err := Turn(page)
	require.NoError(t, err)
	require.Equal(t, 24, d.Enrolled)
	require.Equal(t, 30, d.Capacity)
	require.Equal(t, 120, d.Minutes)
	require.Equal(t, "open", d.State)
	require.Equal(t, "2nd year and above", d.Restrictions)
	require.Equal(t, []string{"Ana Costa", "Pedro Silva"}, d.Teachers)
	require.Equal(t, []SlotRow{
		{Weekday: time.Monday, Start: 540, End: 660,
			Building: "Building VII", Room: "127", RoomType: catalog.RoomLaboratory},
		{Weekday: time.Wednesday, Start: 870, End: 960},
	}, d.Slots)
}

func TestTurnRejectsUnknownWeekday(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><table id="slots">
		<tr class="slot"><td>Someday</td><td>09:00</td><td>11:00</td><td></td></tr>
	</table></body></html>`)
	_, err := Turn(page)
	require.Error(t, err)
}

func TestTurnStudents(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><table id="turn-students">
		<tr><td><a href="?student=55512">Rui Gomes</a></td><td>rg</td><td>cs</td></tr>
	</table></body></html>`)
	require.Equal(t, []StudentRow{
		{ID: 55512, Name: "Rui Gomes", Abbreviation: "rg", CourseAbbr: "cs"},
	}, TurnStudents(page))
}

func TestEmptyPagesYieldNoRows(t *testing.T) {
	t.Parallel()

	page := doc(t, `<html><body><p>nothing here</p></body></html>`)
	require.Empty(t, Institutions(page))
	require.Empty(t, Departments(page))
	require.Empty(t, Classes(page))
	require.Empty(t, Courses(page))
	require.Empty(t, Enrollments(page))
	require.Empty(t, TurnRefs(page))
}
