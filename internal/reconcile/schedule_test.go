package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-crawler/internal/candidate"
	"github.com/opencampus/portal-crawler/internal/catalog"
)

func TestRoomDisambiguation(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			building, err := ctrl.AddBuilding(ctx, candidate.Building{Name: "Building VII"})
			require.NoError(t, err)

			_, err = ctrl.AddRoom(ctx, candidate.Room{BuildingID: building.ID, Name: "127", Type: catalog.RoomClassroom})
			require.NoError(t, err)
			_, err = ctrl.AddRoom(ctx, candidate.Room{BuildingID: building.ID, Name: "127", Type: catalog.RoomLaboratory})
			require.NoError(t, err)
			_, err = ctrl.AddRoom(ctx, candidate.Room{BuildingID: building.ID, Name: "201", Type: catalog.RoomAuditorium})
			require.NoError(t, err)

			// Ambiguous without a type.
			_, err = ctrl.Room(ctx, building.ID, "127", 0)
			var usageErr *UsageError
			require.ErrorAs(t, err, &usageErr)

			// Unambiguous with the type, or when only one room has the name.
			room, err := ctrl.Room(ctx, building.ID, "127", catalog.RoomLaboratory)
			require.NoError(t, err)
			require.Equal(t, catalog.RoomLaboratory, room.Type)

			room, err = ctrl.Room(ctx, building.ID, "201", 0)
			require.NoError(t, err)
			require.Equal(t, catalog.RoomAuditorium, room.Type)
		})
	}
}

func TestAddTurnMergesCountersAndTeachers(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			first, err := ctrl.AddTurn(ctx, candidate.Turn{
				ClassInstanceID: 7, Number: 1, TypeID: 2,
				Enrolled: 20, Capacity: 30, TeacherIDs: []int64{301},
			})
			require.NoError(t, err)
			require.NotZero(t, first.ID)

			second, err := ctrl.AddTurn(ctx, candidate.Turn{
				ClassInstanceID: 7, Number: 1, TypeID: 2,
				Enrolled: 25, State: "open", TeacherIDs: []int64{301, 302},
			})
			require.NoError(t, err)
			require.Equal(t, first.ID, second.ID)
			require.Equal(t, 25, second.Enrolled)
			require.Equal(t, 30, second.Capacity) // zero candidate value leaves it alone
			require.Equal(t, "open", second.State)
			require.ElementsMatch(t, []int64{301, 302}, second.TeacherIDs)
		})
	}
}

func TestAddTurnInstancesIncrementalSync(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			turn, err := ctrl.AddTurn(ctx, candidate.Turn{ClassInstanceID: 7, Number: 1, TypeID: 2})
			require.NoError(t, err)

			const roomA, roomB = 1, 2
			_, err = ctrl.AddTurnInstances(ctx, turn.ID, []candidate.TurnInstance{
				{TurnID: turn.ID, Start: 540, End: 660, Weekday: time.Monday, RoomID: roomA},
				{TurnID: turn.ID, Start: 540, End: 660, Weekday: time.Wednesday, RoomID: roomA},
			}, false)
			require.NoError(t, err)

			stats, err := ctrl.AddTurnInstances(ctx, turn.ID, []candidate.TurnInstance{
				{TurnID: turn.ID, Start: 540, End: 660, Weekday: time.Monday, RoomID: roomB},
				{TurnID: turn.ID, Start: 840, End: 960, Weekday: time.Friday, RoomID: roomA},
			}, false)
			require.NoError(t, err)
			require.Equal(t, Stats{Added: 1, Updated: 1, Deleted: 1}, stats)

			slots, err := ctrl.store.TurnInstances(ctx, turn.ID)
			require.NoError(t, err)
			require.Len(t, slots, 2)
			require.Equal(t, time.Monday, slots[0].Weekday)
			require.Equal(t, int64(roomB), slots[0].RoomID)
			require.Equal(t, time.Friday, slots[1].Weekday)
		})
	}
}

func TestAddTurnInstancesDestructiveSync(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			turn, err := ctrl.AddTurn(ctx, candidate.Turn{ClassInstanceID: 7, Number: 1, TypeID: 2})
			require.NoError(t, err)

			_, err = ctrl.AddTurnInstances(ctx, turn.ID, []candidate.TurnInstance{
				{TurnID: turn.ID, Start: 540, End: 660, Weekday: time.Monday},
				{TurnID: turn.ID, Start: 540, End: 660, Weekday: time.Wednesday},
			}, false)
			require.NoError(t, err)

			stats, err := ctrl.AddTurnInstances(ctx, turn.ID, []candidate.TurnInstance{
				{TurnID: turn.ID, Start: 600, End: 720, Weekday: time.Tuesday},
			}, true)
			require.NoError(t, err)
			require.Equal(t, Stats{Added: 1, Deleted: 2}, stats)

			slots, err := ctrl.store.TurnInstances(ctx, turn.ID)
			require.NoError(t, err)
			require.Len(t, slots, 1)
			require.Equal(t, time.Tuesday, slots[0].Weekday)
		})
	}
}

func TestAddTurnInstancesRejectsMixedTurns(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := ctrl.AddTurnInstances(ctx, 1, []candidate.TurnInstance{
				{TurnID: 1, Start: 540, End: 660, Weekday: time.Monday},
				{TurnID: 2, Start: 540, End: 660, Weekday: time.Tuesday},
			}, false)
			var usageErr *UsageError
			require.ErrorAs(t, err, &usageErr)
		})
	}
}

func TestAddTurnStudent(t *testing.T) {
	t.Parallel()

	for name, ctrl := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			turn, err := ctrl.AddTurn(ctx, candidate.Turn{ClassInstanceID: 7, Number: 1, TypeID: 2})
			require.NoError(t, err)

			require.NoError(t, ctrl.AddTurnStudent(ctx, turn.ID, 9001))
			require.NoError(t, ctrl.AddTurnStudent(ctx, turn.ID, 9001))

			got, err := ctrl.store.TurnByKey(ctx, 7, 1, 2)
			require.NoError(t, err)
			require.Equal(t, []int64{9001}, got.StudentIDs)
		})
	}
}
