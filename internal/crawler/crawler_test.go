package crawler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/reconcile"
	"github.com/opencampus/portal-crawler/internal/session"
	"github.com/opencampus/portal-crawler/internal/store"
	"github.com/opencampus/portal-crawler/internal/store/memory"
	"github.com/opencampus/portal-crawler/internal/worker"
)

// fakePortal serves canned pages by URL. Unknown URLs get an empty page,
// like the portal's empty listings.
type fakePortal struct {
	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func newFakePortal(pages map[string]string) *fakePortal {
	return &fakePortal{pages: pages, hits: map[string]int{}}
}

func (p *fakePortal) Get(_ context.Context, pageURL string) (*goquery.Document, error) {
	p.mu.Lock()
	p.hits[pageURL]++
	body, ok := p.pages[pageURL]
	p.mu.Unlock()
	if !ok {
		body = `<html><body></body></html>`
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Equal(t, worker.Succeeded, Classify(nil))
	require.Equal(t, worker.Abort, Classify(session.ErrAuthenticationFailed))
	require.Equal(t, worker.Abort,
		Classify(&reconcile.UsageError{Msg: "mixed turns"}))

	// Conflicts and duplicates stay in the retry loop; the failure
	// ceiling bounds them.
	require.Equal(t, worker.Retry,
		Classify(&reconcile.ConflictError{Entity: "class 1", Field: "name"}))
	require.Equal(t, worker.Retry, Classify(store.ErrDuplicate))
	require.Equal(t, worker.Retry, Classify(errors.New("connection reset")))
}

func TestURLBuilders(t *testing.T) {
	t.Parallel()

	u := NewURLs("https://portal.example.edu/")
	require.Equal(t, "https://portal.example.edu/institutions", u.Institutions())
	require.Equal(t,
		"https://portal.example.edu/departments?institution=97158&year=2023",
		u.Departments(97158, 2023))
	require.Equal(t,
		"https://portal.example.edu/turn?class=41000&period=s1&turn=tp2&year=2023",
		u.Turn(41000, 2023, "s1", "tp2"))
	require.Equal(t,
		"https://portal.example.edu/admissions?course=1011&phase=2&year=2023",
		u.Admissions(1011, 2023, 2))
	require.Equal(t,
		"https://portal.example.edu/curriculum?course=1011&institution=1",
		u.CurricularPlan(1, 1011))
}

// portalPages is one institution, one department, one class taught in the
// first semester of 2023 with a single theoretical turn.
func portalPages(base string) map[string]string {
	return map[string]string{
		base + "/institutions": `<html><body>
			<select name="year"><option value="2023">2023/2024</option></select>
			<table id="institutions">
				<tr><td><a href="?institution=1">Faculty of Sciences</a></td><td>FC</td></tr>
			</table></body></html>`,
		base + "/departments?institution=1&year=2023": `<html><body>
			<table id="departments">
				<tr><td><a href="?department=9">Informatics</a></td></tr>
			</table></body></html>`,
		base + "/schedule?year=2023": `<html><body>
			<div class="building"><h3>Building VII</h3><table><tr>
				<td class="room" data-type="laboratory">127</td>
			</tr></table></div></body></html>`,
		base + "/courses?institution=1": `<html><body>
			<table id="courses">
				<tr><td><a href="?course=1011">Computer Science</a></td><td>cs</td><td>L</td></tr>
			</table></body></html>`,
		base + "/curriculum?course=1011&institution=1": `<html><body>
			<ul id="plan-years"><li>2023</li></ul></body></html>`,
		base + "/teachers?department=9&year=2023": `<html><body>
			<table id="teachers">
				<tr><td><a href="?teacher=301">Ana Costa</a></td></tr>
			</table></body></html>`,
		base + "/department?department=9&year=2023": `<html><body>
			<ul id="periods"><li><a href="?department=9&period=s1">1st semester</a></li></ul>
			</body></html>`,
		base + "/classes?department=9&period=s1&year=2023": `<html><body>
			<table id="classes">
				<tr><td><a href="?class=41000">Algorithms</a></td></tr>
			</table></body></html>`,
		base + "/class?class=41000&period=s1&year=2023": `<html><body>
			<div id="class"><h1>Algorithms (alg)</h1><span class="ects">6.0</span>
				<div class="section"><h2>Program</h2><div class="body">Sorting, graphs.</div></div>
			</div>
			<ul id="turns"><li><a href="?turn=t1">T1</a></li></ul>
			</body></html>`,
		base + "/admissions?course=1011&phase=1&year=2023": `<html><body>
			<table id="admissions">
				<tr><td>1</td><td><a href="?student=55512">55512</a></td><td>Rui Gomes</td><td>enrolled</td></tr>
				<tr><td>2</td><td></td><td>Marta Pires</td><td>declined</td></tr>
			</table></body></html>`,
		base + "/enrollments?class=41000&period=s1&year=2023": `<html><body>
			<table id="enrollments">
				<tr><td><a href="?student=55512">Rui Gomes</a></td><td>rg</td><td>cs</td><td>1</td><td>1</td><td></td></tr>
			</table></body></html>`,
		base + "/turn?class=41000&period=s1&turn=t1&year=2023": `<html><body>
			<div id="turn">
				<span class="enrolled">1</span><span class="capacity">30</span>
				<span class="minutes">120</span><span class="state">open</span>
			</div>
			<ul id="turn-teachers"><li>Ana Costa</li></ul>
			<table id="slots">
				<tr class="slot"><td>Monday</td><td>09:00</td><td>11:00</td>
					<td data-type="laboratory">Building VII &gt; 127</td></tr>
			</table>
			<table id="turn-students">
				<tr><td><a href="?student=55512">Rui Gomes</a></td><td>rg</td><td>cs</td></tr>
			</table></body></html>`,
	}
}

func runPipeline(t *testing.T, cacheLookups bool) store.Store {
	t.Helper()

	const base = "https://portal.example.edu"
	portal := newFakePortal(portalPages(base))
	st := memory.New()
	o := NewOrchestrator(st, portal, NewURLs(base), Config{
		Workers:      2,
		CacheLookups: cacheLookups,
		Poll:         time.Millisecond,
	}, nil)
	require.NoError(t, o.Run(context.Background()))
	return st
}

func TestRunBuildsFullSnapshot(t *testing.T) {
	t.Parallel()

	for _, mode := range []struct {
		name  string
		cache bool
	}{{"direct", false}, {"cached", true}} {
		mode := mode
		t.Run(mode.name, func(t *testing.T) {
			t.Parallel()
			st := runPipeline(t, mode.cache)
			ctx := context.Background()

			inst, err := st.Institution(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, "Faculty of Sciences", inst.Name)

			dept, err := st.Department(ctx, 9)
			require.NoError(t, err)
			require.Equal(t, int64(1), dept.InstitutionID)

			class, err := st.Class(ctx, 41000)
			require.NoError(t, err)
			require.Equal(t, "Algorithms", class.Name)
			require.Equal(t, "alg", class.Abbreviation)
			require.Equal(t, 12, class.ECTS) // 6.0 credits in half units

			periodID := periodByLetter(t, st, "s1")
			ci, err := st.ClassInstanceByKey(ctx, 41000, 2023, periodID)
			require.NoError(t, err)
			require.Contains(t, string(ci.Info), "Sorting, graphs.")

			course, err := st.Course(ctx, 1011)
			require.NoError(t, err)
			require.Equal(t, "cs", course.Abbreviation)
			require.Equal(t, 2023, course.FirstYear)
			require.Equal(t, 2023, course.LastYear)

			admissions, err := st.Admissions(ctx)
			require.NoError(t, err)
			require.Len(t, admissions, 2)
			for _, a := range admissions {
				require.False(t, a.CheckDate.IsZero())
			}

			students, err := st.StudentsByPortalID(ctx, 55512)
			require.NoError(t, err)
			require.Len(t, students, 1)
			require.Equal(t, "rg", students[0].Abbreviation)
			require.Equal(t, course.ID, students[0].CourseID)

			enr, err := st.EnrollmentByKey(ctx, students[0].ID, ci.ID)
			require.NoError(t, err)
			require.Equal(t, 1, enr.Attempt)

			teacher, err := st.Teacher(ctx, 301)
			require.NoError(t, err)
			require.Contains(t, teacher.DepartmentIDs, int64(9))

			typeID := turnTypeByAbbreviation(t, st, "t")
			turn, err := st.TurnByKey(ctx, ci.ID, 1, typeID)
			require.NoError(t, err)
			require.Equal(t, 30, turn.Capacity)
			require.Contains(t, turn.TeacherIDs, int64(301))
			require.Contains(t, turn.StudentIDs, students[0].ID)

			slots, err := st.TurnInstances(ctx, turn.ID)
			require.NoError(t, err)
			require.Len(t, slots, 1)
			require.Equal(t, time.Monday, slots[0].Weekday)
			require.Equal(t, 540, slots[0].Start)

			rooms, err := st.Rooms(ctx)
			require.NoError(t, err)
			require.Len(t, rooms, 1)
			require.Equal(t, rooms[0].ID, slots[0].RoomID)
			require.Equal(t, "127", rooms[0].Name)
			require.Equal(t, catalog.RoomLaboratory, rooms[0].Type)
		})
	}
}

func TestRunRecordsPhaseRuns(t *testing.T) {
	t.Parallel()

	st := runPipeline(t, false)
	counts, err := st.EntityCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["institutions"])
	require.Equal(t, int64(1), counts["classes"])
	require.Equal(t, int64(2), counts["admissions"])
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	const base = "https://portal.example.edu"
	portal := newFakePortal(portalPages(base))
	st := memory.New()
	o := NewOrchestrator(st, portal, NewURLs(base), Config{
		Workers: 2,
		Poll:    time.Millisecond,
	}, nil)

	require.NoError(t, o.Run(context.Background()))
	require.NoError(t, o.Run(context.Background()))

	ctx := context.Background()
	students, err := st.StudentsByPortalID(ctx, 55512)
	require.NoError(t, err)
	require.Len(t, students, 1)

	counts, err := st.EntityCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["classes"])
	// Admissions are append-only records of contest listings.
	require.Equal(t, int64(4), counts["admissions"])
}

// Abbreviations get reused across course eras; the curricular-plan years
// must make the year-qualified lookup unambiguous without any hand-set
// ranges.
func TestSharedCourseAbbreviationResolvedByYear(t *testing.T) {
	t.Parallel()

	const base = "https://portal.example.edu"
	portal := newFakePortal(map[string]string{
		base + "/courses?institution=1": `<html><body>
			<table id="courses">
				<tr><td><a href="?course=2001">Biology</a></td><td>B</td><td></td></tr>
				<tr><td><a href="?course=2002">Biochemistry</a></td><td>B</td><td></td></tr>
			</table></body></html>`,
		base + "/curriculum?course=2001&institution=1": `<html><body>
			<ul id="plan-years"><li>2015</li><li>2018</li></ul></body></html>`,
		base + "/curriculum?course=2002&institution=1": `<html><body>
			<ul id="plan-years"><li>2019</li><li>2023</li></ul></body></html>`,
	})
	st := memory.New()
	ctrl := reconcile.New(st, reconcile.NewDirect(st), nil)
	c := NewCrawler(portal, NewURLs(base), ctrl, []int{2023}, false, nil)

	ctx := context.Background()
	require.NoError(t, c.Courses(ctx, catalog.Institution{ID: 1, Name: "Faculty of Sciences"}))

	course, err := ctrl.CourseByAbbreviation(ctx, "B", 2016)
	require.NoError(t, err)
	require.Equal(t, int64(2001), course.ID)

	course, err = ctrl.CourseByAbbreviation(ctx, "B", 2020)
	require.NoError(t, err)
	require.Equal(t, int64(2002), course.ID)
}

// Some schedule cells print a bare room with no building prefix; those slots
// keep an unset room instead of inventing a nameless building.
func TestTurnSlotWithoutBuildingLeavesRoomUnset(t *testing.T) {
	t.Parallel()

	const base = "https://portal.example.edu"
	pages := portalPages(base)
	pages[base+"/turn?class=41000&period=s1&turn=t1&year=2023"] = `<html><body>
		<div id="turn"><span class="capacity">30</span></div>
		<table id="slots">
			<tr class="slot"><td>Monday</td><td>09:00</td><td>11:00</td>
				<td data-type="laboratory">127</td></tr>
		</table></body></html>`
	portal := newFakePortal(pages)

	st := memory.New()
	o := NewOrchestrator(st, portal, NewURLs(base), Config{
		Workers: 1,
		Poll:    time.Millisecond,
	}, nil)
	require.NoError(t, o.Run(context.Background()))

	ctx := context.Background()
	periodID := periodByLetter(t, st, "s1")
	ci, err := st.ClassInstanceByKey(ctx, 41000, 2023, periodID)
	require.NoError(t, err)
	typeID := turnTypeByAbbreviation(t, st, "t")
	turn, err := st.TurnByKey(ctx, ci.ID, 1, typeID)
	require.NoError(t, err)

	slots, err := st.TurnInstances(ctx, turn.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Zero(t, slots[0].RoomID)

	_, err = st.BuildingByName(ctx, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFirstYearClipsCrawl(t *testing.T) {
	t.Parallel()

	const base = "https://portal.example.edu"
	pages := portalPages(base)
	pages[base+"/institutions"] = `<html><body>
		<select name="year">
			<option value="2022">2022/2023</option>
			<option value="2023">2023/2024</option>
		</select>
		<table id="institutions">
			<tr><td><a href="?institution=1">Faculty of Sciences</a></td><td>FC</td></tr>
		</table></body></html>`
	portal := newFakePortal(pages)

	st := memory.New()
	o := NewOrchestrator(st, portal, NewURLs(base), Config{
		Workers:   1,
		FirstYear: 2023,
		Poll:      time.Millisecond,
	}, nil)
	require.NoError(t, o.Run(context.Background()))

	portal.mu.Lock()
	defer portal.mu.Unlock()
	require.Zero(t, portal.hits[base+"/departments?institution=1&year=2022"])
	require.NotZero(t, portal.hits[base+"/departments?institution=1&year=2023"])
}

func periodByLetter(t *testing.T, st store.Store, letter string) int64 {
	t.Helper()
	periods, err := st.Periods(context.Background())
	require.NoError(t, err)
	for _, p := range periods {
		if p.Letter == letter {
			return p.ID
		}
	}
	t.Fatalf("no period with letter %q", letter)
	return 0
}

func turnTypeByAbbreviation(t *testing.T, st store.Store, abbr string) int64 {
	t.Helper()
	types, err := st.TurnTypes(context.Background())
	require.NoError(t, err)
	for _, tt := range types {
		if tt.Abbreviation == abbr {
			return tt.ID
		}
	}
	t.Fatalf("no turn type %q", abbr)
	return 0
}
