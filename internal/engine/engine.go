package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"streakline/internal/clock"
	"streakline/internal/domain"
	"streakline/internal/events"
	"streakline/internal/store"
)

// Engine is the mission state machine. All time-based transitions are
// evaluated lazily, on CheckIn or ListMissions; there are no background
// timers. Every operation snapshots the clock once so a single evaluation
// never observes two different "current times".
type Engine struct {
	Store  store.Store
	Events events.Writer
	Clock  clock.Clock
	// Zone is the default owner time zone used to resolve calendar days.
	// Requests can override it with WithZone; UTC is the fallback.
	Zone *time.Location
}

func New(st store.Store, ev events.Writer) Engine {
	return Engine{
		Store:  st,
		Events: ev,
		Clock:  clock.System,
		Zone:   time.UTC,
	}
}

type zoneKey struct{}

// WithZone attaches the request owner's time zone to the context.
func WithZone(ctx context.Context, loc *time.Location) context.Context {
	if loc == nil {
		return ctx
	}
	return context.WithValue(ctx, zoneKey{}, loc)
}

func (e Engine) zone(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(zoneKey{}).(*time.Location); ok && loc != nil {
		return loc
	}
	if e.Zone != nil {
		return e.Zone
	}
	return time.UTC
}

func (e Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now()
	}
	return time.Now()
}

// CreateMission starts a new fixed-length challenge. The creation day is day
// index 0; the first check-in is due that same calendar day.
func (e Engine) CreateMission(ctx context.Context, ownerID, title string, duration int) (domain.Mission, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Mission{}, ValidationError{Field: "owner_id", Reason: "required"}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Mission{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !domain.ValidDuration(duration) {
		return domain.Mission{}, ValidationError{Field: "duration", Reason: "must be one of 7, 10, 14 or 30"}
	}
	now := e.now()
	m := domain.Mission{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Title:      title,
		Duration:   duration,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		CreatedDay: clock.DayOf(now, e.zone(ctx)),
		Checks:     []clock.Day{},
	}
	if err := checkInvariants(m); err != nil {
		return domain.Mission{}, err
	}
	created, err := e.Store.Create(ctx, m)
	if err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, "mission.created", ownerID, created.ID, events.EventPayload{
		"title":    created.Title,
		"duration": created.Duration,
	}); err != nil {
		return created, err
	}
	return created, nil
}

// CheckIn records a check for the current calendar day, or discovers that a
// required day's window already closed and transitions the mission to
// failed. Duplicate-day detection runs before the deadline evaluation so a
// same-day retry is always ErrAlreadyCheckedToday, never a failure.
func (e Engine) CheckIn(ctx context.Context, ownerID, missionID string) (domain.Mission, error) {
	loc := e.zone(ctx)
	for attempt := 0; attempt < 2; attempt++ {
		m, err := e.Store.Get(ctx, missionID)
		if err != nil {
			return domain.Mission{}, err
		}
		if m.OwnerID != ownerID {
			return domain.Mission{}, ErrOwnership
		}
		if m.Terminal() {
			return m, ErrAlreadyTerminal
		}

		now := e.now()
		today := clock.DayOf(now, loc)
		if m.CheckedOn(today) {
			return m, ErrAlreadyCheckedToday
		}

		expected := m.ExpectedDay()
		switch {
		case today > expected:
			// The window for the next required day closed without a
			// check-in. No catch-up: the mission fails without
			// appending anything.
			m.Failed = true
			at := now.UTC().Format(time.RFC3339)
			m.FailedAt = &at
			if err := checkInvariants(m); err != nil {
				return domain.Mission{}, err
			}
			updated, err := e.Store.CompareAndSwap(ctx, m.ID, m.Version, m)
			if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
				continue
			}
			if err != nil {
				return domain.Mission{}, casError(err)
			}
			_ = e.Events.Append(ctx, "mission.failed", ownerID, m.ID, events.EventPayload{
				"expected_day": expected.String(),
				"observed_day": today.String(),
			})
			return updated, ErrMissedDay

		case today == expected:
			m.Checks = append(m.Checks, today)
			if len(m.Checks) == m.Duration {
				m.Completed = true
				at := now.UTC().Format(time.RFC3339)
				m.CompletedAt = &at
			}
			if err := checkInvariants(m); err != nil {
				return domain.Mission{}, err
			}
			updated, err := e.Store.CompareAndSwap(ctx, m.ID, m.Version, m)
			if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
				continue
			}
			if err != nil {
				return domain.Mission{}, casError(err)
			}
			if err := e.Events.Append(ctx, "mission.checked", ownerID, m.ID, events.EventPayload{
				"day":      today.String(),
				"progress": len(updated.Checks),
			}); err != nil {
				return updated, err
			}
			if updated.Completed {
				if err := e.Events.Append(ctx, "mission.completed", ownerID, m.ID, events.EventPayload{
					"duration": updated.Duration,
				}); err != nil {
					return updated, err
				}
			}
			return updated, nil

		default:
			// today < expected can only mean today is already recorded
			// at an earlier index, which the membership check above
			// catches.
			return m, ErrAlreadyCheckedToday
		}
	}
	return domain.Mission{}, ErrConcurrencyConflict
}

// Reconcile evaluates whether an active mission has silently missed a
// required day. Pure: no store access, no side effects.
func Reconcile(m domain.Mission, now time.Time, loc *time.Location) (domain.Mission, bool) {
	if m.Terminal() {
		return m, false
	}
	today := clock.DayOf(now, loc)
	if today <= m.ExpectedDay() {
		return m, false
	}
	m.Failed = true
	at := now.UTC().Format(time.RFC3339)
	m.FailedAt = &at
	return m, true
}

// ListMissions returns all of the owner's missions, lazily reconciling and
// persisting any missed-deadline failures first, so a mission abandoned
// without a further check-in still surfaces as failed.
func (e Engine) ListMissions(ctx context.Context, ownerID string) ([]domain.Mission, error) {
	missions, err := e.Store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	loc := e.zone(ctx)
	out := missions[:0]
	for _, m := range missions {
		reconciled, err := e.persistReconciled(ctx, m, now, loc)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted concurrently; drop from the listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, reconciled)
	}
	return out, nil
}

// GetMission returns a single mission after lazy reconciliation.
func (e Engine) GetMission(ctx context.Context, ownerID, missionID string) (domain.Mission, error) {
	m, err := e.Store.Get(ctx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if m.OwnerID != ownerID {
		return domain.Mission{}, ErrOwnership
	}
	return e.persistReconciled(ctx, m, e.now(), e.zone(ctx))
}

// persistReconciled writes a reconciliation transition back through the
// store, re-reading once on a version conflict.
func (e Engine) persistReconciled(ctx context.Context, m domain.Mission, now time.Time, loc *time.Location) (domain.Mission, error) {
	for attempt := 0; attempt < 2; attempt++ {
		reconciled, changed := Reconcile(m, now, loc)
		if !changed {
			return m, nil
		}
		if err := checkInvariants(reconciled); err != nil {
			return domain.Mission{}, err
		}
		updated, err := e.Store.CompareAndSwap(ctx, m.ID, m.Version, reconciled)
		if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
			fresh, err := e.Store.Get(ctx, m.ID)
			if err != nil {
				return domain.Mission{}, err
			}
			m = fresh
			continue
		}
		if err != nil {
			return domain.Mission{}, casError(err)
		}
		_ = e.Events.Append(ctx, "mission.failed", m.OwnerID, m.ID, events.EventPayload{
			"expected_day": m.ExpectedDay().String(),
			"observed_day": clock.DayOf(now, loc).String(),
		})
		return updated, nil
	}
	return domain.Mission{}, ErrConcurrencyConflict
}

// DeleteMission removes a mission in any state. Irreversible.
func (e Engine) DeleteMission(ctx context.Context, ownerID, missionID string) error {
	m, err := e.Store.Get(ctx, missionID)
	if err != nil {
		return err
	}
	if m.OwnerID != ownerID {
		return ErrOwnership
	}
	if err := e.Store.Delete(ctx, missionID); err != nil {
		return err
	}
	return e.Events.Append(ctx, "mission.deleted", ownerID, missionID, events.EventPayload{
		"title": m.Title,
	})
}

func casError(err error) error {
	if errors.Is(err, store.ErrVersionConflict) {
		return ErrConcurrencyConflict
	}
	return err
}

// checkInvariants verifies the mission shape before any write. A violation
// is a programming error and aborts the write.
func checkInvariants(m domain.Mission) error {
	if len(m.Checks) > m.Duration {
		return InvariantViolation{MissionID: m.ID, Reason: fmt.Sprintf("%d checks exceed duration %d", len(m.Checks), m.Duration)}
	}
	for i, c := range m.Checks {
		if want := m.CreatedDay.Add(i); c != want {
			return InvariantViolation{MissionID: m.ID, Reason: fmt.Sprintf("check %d is %s, want %s", i, c, want)}
		}
	}
	if m.Completed {
		if len(m.Checks) != m.Duration {
			return InvariantViolation{MissionID: m.ID, Reason: "completed with incomplete checks"}
		}
		if m.Failed {
			return InvariantViolation{MissionID: m.ID, Reason: "completed and failed"}
		}
	}
	if m.Failed && m.Completed {
		return InvariantViolation{MissionID: m.ID, Reason: "failed and completed"}
	}
	return nil
}
