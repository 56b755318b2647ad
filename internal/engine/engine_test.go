package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"streakline/internal/clock"
	"streakline/internal/db"
	"streakline/internal/domain"
	"streakline/internal/engine"
	"streakline/internal/events"
	"streakline/internal/migrate"
	"streakline/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Store  store.SQLite
	Events events.Writer
	Ctx    context.Context
	now    *time.Time
}

// Advance moves the test clock forward by n calendar days.
func (env *testEnv) Advance(days int) {
	*env.now = env.now.Add(time.Duration(days) * 24 * time.Hour)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	st := store.SQLite{DB: conn}
	ev := events.Writer{DB: conn, Now: func() time.Time { return now }}
	eng := engine.New(st, ev)
	eng.Clock = clock.Func(func() time.Time { return now })
	return &testEnv{
		Engine: eng,
		Store:  st,
		Events: ev,
		Ctx:    context.Background(),
		now:    &now,
	}
}

func mustCreate(t *testing.T, env *testEnv, owner, title string, duration int) domain.Mission {
	t.Helper()
	m, err := env.Engine.CreateMission(env.Ctx, owner, title, duration)
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

func TestCreateMissionValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name     string
		owner    string
		title    string
		duration int
	}{
		{"empty title", "u1", "", 7},
		{"blank title", "u1", "   ", 7},
		{"empty owner", "", "read", 7},
		{"bad duration", "u1", "read", 8},
		{"zero duration", "u1", "read", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateMission(env.Ctx, tc.owner, tc.title, tc.duration)
			var ve engine.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateMissionStartsOnCreationDay(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "  morning run  ", 7)
	if m.Title != "morning run" {
		t.Fatalf("title not trimmed: %q", m.Title)
	}
	if m.CreatedDay.String() != "2024-01-01" {
		t.Fatalf("created day = %s", m.CreatedDay)
	}
	if m.ExpectedDay() != m.CreatedDay {
		t.Fatal("first check-in should be due on the creation day")
	}
	if len(m.Checks) != 0 || m.Terminal() {
		t.Fatalf("fresh mission not empty/active: %+v", m)
	}
}

func TestFullRunCompletes(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	for i := 0; i < 7; i++ {
		got, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID)
		if err != nil {
			t.Fatalf("check day %d: %v", i, err)
		}
		if len(got.Checks) != i+1 {
			t.Fatalf("day %d: %d checks", i, len(got.Checks))
		}
		env.Advance(1)
	}
	got, err := env.Engine.GetMission(env.Ctx, "u1", m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Completed || got.Failed {
		t.Fatalf("expected completed, got %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestDuplicateSameDayCheck(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); err != nil {
		t.Fatalf("first check: %v", err)
	}
	got, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID)
	if !errors.Is(err, engine.ErrAlreadyCheckedToday) {
		t.Fatalf("expected ErrAlreadyCheckedToday, got %v", err)
	}
	if len(got.Checks) != 1 {
		t.Fatalf("duplicate check mutated the mission: %d checks", len(got.Checks))
	}
	// Later the same day, still a duplicate.
	*env.now = env.now.Add(5 * time.Hour)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); !errors.Is(err, engine.ErrAlreadyCheckedToday) {
		t.Fatalf("expected ErrAlreadyCheckedToday, got %v", err)
	}
}

func TestMissedDayFailsWithoutAppending(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); err != nil {
		t.Fatalf("day 0: %v", err)
	}
	// Skip day 1 entirely; attempt on day 2.
	env.Advance(2)
	got, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID)
	if !errors.Is(err, engine.ErrMissedDay) {
		t.Fatalf("expected ErrMissedDay, got %v", err)
	}
	if !got.Failed || got.Completed {
		t.Fatalf("expected failed, got %+v", got)
	}
	if len(got.Checks) != 1 {
		t.Fatalf("failure appended a check: %d", len(got.Checks))
	}
	if got.FailedAt == nil {
		t.Fatal("failed_at not set")
	}
	// The failure is persisted, not just returned.
	fresh, err := env.Store.Get(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !fresh.Failed {
		t.Fatal("failure not persisted")
	}
}

func TestTerminalMissionsRejectChecks(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); err != nil {
		t.Fatalf("day 0: %v", err)
	}
	env.Advance(2)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); !errors.Is(err, engine.ErrMissedDay) {
		t.Fatalf("expected ErrMissedDay, got %v", err)
	}
	// Second attempt on the already-failed mission.
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); !errors.Is(err, engine.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	// Completed missions behave the same.
	done := mustCreate(t, env, "u1", "short", 7)
	for i := 0; i < 7; i++ {
		if _, err := env.Engine.CheckIn(env.Ctx, "u1", done.ID); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		env.Advance(1)
	}
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", done.ID); !errors.Is(err, engine.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal after completion, got %v", err)
	}
}

func TestListReconcilesAbandonedMissions(t *testing.T) {
	env := newTestEnv(t)
	abandoned := mustCreate(t, env, "u1", "abandoned", 7)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", abandoned.ID); err != nil {
		t.Fatalf("check: %v", err)
	}
	// A fresh mission created later stays active.
	env.Advance(3)
	fresh := mustCreate(t, env, "u1", "fresh", 10)

	missions, err := env.Engine.ListMissions(env.Ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byID := map[string]domain.Mission{}
	for _, m := range missions {
		byID[m.ID] = m
	}
	if !byID[abandoned.ID].Failed {
		t.Fatal("abandoned mission should surface as failed")
	}
	if byID[fresh.ID].Terminal() {
		t.Fatal("fresh mission should stay active")
	}
	// The reconciled failure is durable.
	stored, err := env.Store.Get(env.Ctx, abandoned.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Failed || stored.Version <= abandoned.Version {
		t.Fatalf("reconciliation not persisted: %+v", stored)
	}
}

func TestGetMissionReconciles(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	env.Advance(1)
	got, err := env.Engine.GetMission(env.Ctx, "u1", m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Failed {
		t.Fatal("mission with a silently-missed day should read as failed")
	}
}

func TestOwnership(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	if _, err := env.Engine.CheckIn(env.Ctx, "u2", m.ID); !errors.Is(err, engine.ErrOwnership) {
		t.Fatalf("check-in: expected ErrOwnership, got %v", err)
	}
	if _, err := env.Engine.GetMission(env.Ctx, "u2", m.ID); !errors.Is(err, engine.ErrOwnership) {
		t.Fatalf("get: expected ErrOwnership, got %v", err)
	}
	if err := env.Engine.DeleteMission(env.Ctx, "u2", m.ID); !errors.Is(err, engine.ErrOwnership) {
		t.Fatalf("delete: expected ErrOwnership, got %v", err)
	}
	missions, err := env.Engine.ListMissions(env.Ctx, "u2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(missions) != 0 {
		t.Fatalf("other owner's listing leaked %d missions", len(missions))
	}
}

func TestDeleteMission(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	if err := env.Engine.DeleteMission(env.Ctx, "u1", m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Store.Get(env.Ctx, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := env.Engine.DeleteMission(env.Ctx, "u1", m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestZoneDecidesCalendarDay(t *testing.T) {
	env := newTestEnv(t)
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// 23:30 UTC: still Jan 1 in UTC, already Jan 2 in Seoul.
	*env.now = time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	ctx := engine.WithZone(env.Ctx, seoul)
	m, err := env.Engine.CreateMission(ctx, "u1", "read", 7)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.CreatedDay.String() != "2024-01-02" {
		t.Fatalf("created day in Seoul = %s", m.CreatedDay)
	}
	if _, err := env.Engine.CheckIn(ctx, "u1", m.ID); err != nil {
		t.Fatalf("check: %v", err)
	}
	// One UTC hour later it is still Jan 2 in Seoul: a duplicate, not a miss.
	*env.now = time.Date(2024, 1, 2, 0, 30, 0, 0, time.UTC)
	if _, err := env.Engine.CheckIn(ctx, "u1", m.ID); !errors.Is(err, engine.ErrAlreadyCheckedToday) {
		t.Fatalf("expected ErrAlreadyCheckedToday, got %v", err)
	}
}

// conflictStore wraps a Store and fails the first n CompareAndSwap calls
// with ErrVersionConflict.
type conflictStore struct {
	store.Store
	remaining int
}

func (c *conflictStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, m domain.Mission) (domain.Mission, error) {
	if c.remaining > 0 {
		c.remaining--
		return domain.Mission{}, store.ErrVersionConflict
	}
	return c.Store.CompareAndSwap(ctx, id, expectedVersion, m)
}

func TestCheckInRetriesOnceOnConflict(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	cs := &conflictStore{Store: env.Store, remaining: 1}
	eng := env.Engine
	eng.Store = cs
	got, err := eng.CheckIn(env.Ctx, "u1", m.ID)
	if err != nil {
		t.Fatalf("check-in should succeed after one conflict: %v", err)
	}
	if len(got.Checks) != 1 {
		t.Fatalf("checks = %d", len(got.Checks))
	}
}

func TestCheckInGivesUpAfterRepeatedConflicts(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	cs := &conflictStore{Store: env.Store, remaining: 2}
	eng := env.Engine
	eng.Store = cs
	if _, err := eng.CheckIn(env.Ctx, "u1", m.ID); !errors.Is(err, engine.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	// The mission itself is untouched and the operation is retryable.
	eng.Store = env.Store
	if _, err := eng.CheckIn(env.Ctx, "u1", m.ID); err != nil {
		t.Fatalf("retry after conflict: %v", err)
	}
}

func TestReconcilePure(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)

	// Within the window: no change.
	sameDay := env.now.Add(6 * time.Hour)
	if _, changed := engine.Reconcile(m, sameDay, time.UTC); changed {
		t.Fatal("same-day reconcile should be a no-op")
	}

	// Past the window: failed, without touching the stored copy.
	late := env.now.Add(48 * time.Hour)
	reconciled, changed := engine.Reconcile(m, late, time.UTC)
	if !changed || !reconciled.Failed {
		t.Fatalf("late reconcile = %+v changed=%v", reconciled, changed)
	}
	if m.Failed {
		t.Fatal("input mutated")
	}

	// Terminal missions never change.
	if _, changed := engine.Reconcile(reconciled, late.Add(time.Hour), time.UTC); changed {
		t.Fatal("terminal mission reconciled again")
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, "u1", "read", 7)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); err != nil {
		t.Fatalf("check: %v", err)
	}
	env.Advance(2)
	if _, err := env.Engine.CheckIn(env.Ctx, "u1", m.ID); !errors.Is(err, engine.ErrMissedDay) {
		t.Fatalf("expected ErrMissedDay, got %v", err)
	}
	rows, err := env.Events.Latest(env.Ctx, 10, "", m.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var types []string
	for i := len(rows) - 1; i >= 0; i-- {
		types = append(types, rows[i].Type)
	}
	want := []string{"mission.created", "mission.checked", "mission.failed"}
	if len(types) != len(want) {
		t.Fatalf("event types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}
