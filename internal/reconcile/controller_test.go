package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-crawler/internal/candidate"
	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/store"
	"github.com/opencampus/portal-crawler/internal/store/memory"
)

// lookups builds one controller per lookup implementation over a shared
// store, so every merge rule is checked both with and without the mirror.
func lookups(t *testing.T) map[string]*Controller {
	t.Helper()
	out := map[string]*Controller{}

	direct := memory.New()
	out["direct"] = New(direct, NewDirect(direct), nil)

	backing := memory.New()
	cached, err := NewCached(context.Background(), backing)
	require.NoError(t, err)
	out["cached"] = New(backing, cached, nil)

	return out
}

func TestAddInstitutionIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			cand := candidate.Institution{ID: 97158, Name: "Faculty of Sciences", Abbreviation: "FC"}
			first, err := ctrl.AddInstitution(ctx, cand)
			require.NoError(t, err)

			second, err := ctrl.AddInstitution(ctx, cand)
			require.NoError(t, err)
			require.Equal(t, first, second)

			all, err := ctrl.store.Institutions(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestAddInstitutionsBatchCounters(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := ctrl.AddInstitution(ctx, candidate.Institution{ID: 1, Name: "Sciences"})
			require.NoError(t, err)

			stats, err := ctrl.AddInstitutions(ctx, []candidate.Institution{
				{ID: 1, Name: "Sciences"},                 // unchanged
				{ID: 1, Name: "Sciences and Technology"},  // renamed
				{ID: 2, Name: "Medicine"},                 // new
			})
			require.NoError(t, err)
			require.Equal(t, Stats{Added: 1, Updated: 1, Ignored: 1}, stats)
		})
	}
}

func TestAddDepartmentInstitutionConflict(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := ctrl.AddDepartment(ctx, candidate.Department{ID: 9, Name: "Informatics", InstitutionID: 1})
			require.NoError(t, err)

			_, err = ctrl.AddDepartment(ctx, candidate.Department{ID: 9, Name: "Informatics", InstitutionID: 2})
			var conflictErr *ConflictError
			require.ErrorAs(t, err, &conflictErr)
			require.Equal(t, "institution", conflictErr.Field)

			// The failed merge wrote nothing.
			dep, err := ctrl.store.Department(ctx, 9)
			require.NoError(t, err)
			require.Equal(t, int64(1), dep.InstitutionID)
		})
	}
}

func TestAddClassNameConflictWritesNothing(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := ctrl.AddClass(ctx, candidate.Class{ID: 41000, DepartmentID: 9, Name: "Algorithms", ECTS: 12})
			require.NoError(t, err)

			_, err = ctrl.AddClass(ctx, candidate.Class{ID: 41000, Name: "Operating Systems"})
			var conflictErr *ConflictError
			require.ErrorAs(t, err, &conflictErr)
			require.Equal(t, "name", conflictErr.Field)
			require.Equal(t, "Algorithms", conflictErr.Have)
			require.Equal(t, "Operating Systems", conflictErr.Want)

			got, err := ctrl.store.Class(ctx, 41000)
			require.NoError(t, err)
			require.Equal(t, "Algorithms", got.Name)
		})
	}
}

func TestAddClassFillsMissingFields(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := ctrl.AddClass(ctx, candidate.Class{ID: 41000, DepartmentID: 9})
			require.NoError(t, err)

			got, err := ctrl.AddClass(ctx, candidate.Class{ID: 41000, Name: "Algorithms", Abbreviation: "alg", ECTS: 12})
			require.NoError(t, err)
			require.Equal(t, "Algorithms", got.Name)
			require.Equal(t, "alg", got.Abbreviation)
			require.Equal(t, 12, got.ECTS)
		})
	}
}

func TestAddClassInstanceResolvesExisting(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			cand := candidate.ClassInstance{ClassID: 41000, PeriodID: 2, Year: 2023}
			first, err := ctrl.AddClassInstance(ctx, cand)
			require.NoError(t, err)
			require.NotZero(t, first.ID)

			second, err := ctrl.AddClassInstance(ctx, cand)
			require.NoError(t, err)
			require.Equal(t, first.ID, second.ID)

			stats, err := ctrl.AddClassInstances(ctx, []candidate.ClassInstance{
				cand,
				{ClassID: 41000, PeriodID: 2, Year: 2024},
			})
			require.NoError(t, err)
			require.Equal(t, Stats{Added: 1, Ignored: 1}, stats)
		})
	}
}

func TestCourseByAbbreviationNeedsYearWhenAmbiguous(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := ctrl.AddCourse(ctx, candidate.Course{
				ID: 1011, Name: "Computer Science", Abbreviation: "CS",
				TemporalRange: catalog.TemporalRange{FirstYear: 2009, LastYear: 2015},
			})
			require.NoError(t, err)
			_, err = ctrl.AddCourse(ctx, candidate.Course{
				ID: 2022, Name: "Computer Science and Engineering", Abbreviation: "CS",
				TemporalRange: catalog.TemporalRange{FirstYear: 2016, LastYear: 2024},
			})
			require.NoError(t, err)

			_, err = ctrl.CourseByAbbreviation(ctx, "CS", 0)
			var usageErr *UsageError
			require.ErrorAs(t, err, &usageErr)

			got, err := ctrl.CourseByAbbreviation(ctx, "CS", 2012)
			require.NoError(t, err)
			require.Equal(t, int64(1011), got.ID)

			got, err = ctrl.CourseByAbbreviation(ctx, "CS", 2020)
			require.NoError(t, err)
			require.Equal(t, int64(2022), got.ID)

			_, err = ctrl.CourseByAbbreviation(ctx, "EE", 2020)
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestAddTeacherLinksDepartments(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			first, err := ctrl.AddTeacher(ctx, candidate.Teacher{ID: 301, Name: "Ana Costa", DepartmentID: 9}, 2020)
			require.NoError(t, err)
			require.Equal(t, []int64{9}, first.DepartmentIDs)

			second, err := ctrl.AddTeacher(ctx, candidate.Teacher{ID: 301, Name: "Ana Costa", DepartmentID: 12}, 2022)
			require.NoError(t, err)
			require.ElementsMatch(t, []int64{9, 12}, second.DepartmentIDs)
			require.Equal(t, catalog.TemporalRange{FirstYear: 2020, LastYear: 2022}, second.TemporalRange)

			byName, err := ctrl.TeacherByName(ctx, "Ana Costa")
			require.NoError(t, err)
			require.Equal(t, int64(301), byName.ID)
		})
	}
}

func TestAddStudentRecycledPortalID(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			first, err := ctrl.AddStudent(ctx, candidate.Student{PortalID: 55512, Name: "John Smith"}, 2015)
			require.NoError(t, err)

			// Same portal id, same person: merge.
			again, err := ctrl.AddStudent(ctx, candidate.Student{PortalID: 55512, Name: "John Smith", Abbreviation: "jsmith"}, 2016)
			require.NoError(t, err)
			require.Equal(t, first.ID, again.ID)
			require.Equal(t, "jsmith", again.Abbreviation)
			require.Equal(t, catalog.TemporalRange{FirstYear: 2015, LastYear: 2016}, again.TemporalRange)

			// Same portal id, different identity: new row.
			other, err := ctrl.AddStudent(ctx, candidate.Student{PortalID: 55512, Name: "Maria Reis"}, 2023)
			require.NoError(t, err)
			require.NotEqual(t, first.ID, other.ID)

			// Changing a set abbreviation is a conflict.
			_, err = ctrl.AddStudent(ctx, candidate.Student{PortalID: 55512, Name: "John Smith", Abbreviation: "john.s"}, 2016)
			var conflictErr *ConflictError
			require.ErrorAs(t, err, &conflictErr)
		})
	}
}

func TestAddEnrollmentFillsMissingOnly(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			first, err := ctrl.AddEnrollment(ctx, candidate.Enrollment{StudentID: 3, ClassInstanceID: 7, Attempt: 2})
			require.NoError(t, err)

			merged, err := ctrl.AddEnrollment(ctx, candidate.Enrollment{
				StudentID: 3, ClassInstanceID: 7, Attempt: 5, StudentYear: 3, Statutes: "working student",
			})
			require.NoError(t, err)
			require.Equal(t, first.ID, merged.ID)
			require.Equal(t, 2, merged.Attempt) // present value wins
			require.Equal(t, 3, merged.StudentYear)
			require.Equal(t, "working student", merged.Statutes)
		})
	}
}

func TestAddAdmissionsInsertsEveryRow(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			checked := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
			stats, err := ctrl.AddAdmissions(ctx, []candidate.Admission{
				{Name: "John Smith", Phase: 1, Year: 2023, Option: 2, State: "accepted", CheckDate: checked},
				{Name: "Maria Reis", Phase: 1, Year: 2023, Option: 1, State: "accepted", CheckDate: checked},
			})
			require.NoError(t, err)
			require.Equal(t, Stats{Added: 2}, stats)
		})
	}
}

func TestSeedPopulatesStaticCollections(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			require.NoError(t, ctrl.Seed(ctx))
			require.NoError(t, ctrl.Seed(ctx)) // idempotent

			degree, err := ctrl.DegreeByCode(ctx, "MI")
			require.NoError(t, err)
			require.Equal(t, "integrated master", degree.Name)

			period, err := ctrl.PeriodByLetter(ctx, "s2")
			require.NoError(t, err)
			require.Equal(t, 2, period.Part)
			require.Equal(t, 2, period.Parts)
			require.NotZero(t, period.ID)

			turnType, err := ctrl.TurnTypeByAbbreviation(ctx, "tp")
			require.NoError(t, err)
			require.Equal(t, "theoretical-practical", turnType.Name)

			_, err = ctrl.PeriodByLetter(ctx, "x9")
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}
