package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"streakline/internal/clock"
	"streakline/internal/domain"
)

// SQLite is the durable Store implementation backed by database/sql.
// Checks are persisted as a JSON array of YYYY-MM-DD strings, the same form
// they take on the wire.
type SQLite struct {
	DB *sql.DB
}

const missionColumns = `id, owner_id, title, duration, created_at, created_day, checks_json, completed, failed, completed_at, failed_at, version`

func (s SQLite) Create(ctx context.Context, m domain.Mission) (domain.Mission, error) {
	checks, err := marshalChecks(m.Checks)
	if err != nil {
		return domain.Mission{}, err
	}
	m.Version = 1
	_, err = s.DB.ExecContext(ctx, `INSERT INTO missions(`+missionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.OwnerID, m.Title, m.Duration, m.CreatedAt, int64(m.CreatedDay), checks,
		boolInt(m.Completed), boolInt(m.Failed), m.CompletedAt, m.FailedAt, m.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Mission{}, ErrExists
		}
		return domain.Mission{}, err
	}
	return m, nil
}

func (s SQLite) Get(ctx context.Context, id string) (domain.Mission, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

func (s SQLite) ListByOwner(ctx context.Context, ownerID string) ([]domain.Mission, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE owner_id=? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missions []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

// CompareAndSwap replaces the stored mission only if its version still equals
// expectedVersion. The stored version is bumped on success; ErrVersionConflict
// means the caller must re-read and re-evaluate.
func (s SQLite) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, m domain.Mission) (domain.Mission, error) {
	checks, err := marshalChecks(m.Checks)
	if err != nil {
		return domain.Mission{}, err
	}
	m.Version = expectedVersion + 1
	res, err := s.DB.ExecContext(ctx, `UPDATE missions SET
		title=?, duration=?, checks_json=?, completed=?, failed=?, completed_at=?, failed_at=?, version=?
		WHERE id=? AND version=?`,
		m.Title, m.Duration, checks, boolInt(m.Completed), boolInt(m.Failed),
		m.CompletedAt, m.FailedAt, m.Version, id, expectedVersion)
	if err != nil {
		return domain.Mission{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Mission{}, err
	}
	if affected == 0 {
		// Either the row is gone or the version moved.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return domain.Mission{}, getErr
		}
		return domain.Mission{}, ErrVersionConflict
	}
	return m, nil
}

func (s SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM missions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMission(scan func(...any) error) (domain.Mission, error) {
	var (
		m                 domain.Mission
		createdDay        int64
		checksJSON        string
		completed, failed int
		completedAt       sql.NullString
		failedAt          sql.NullString
	)
	err := scan(&m.ID, &m.OwnerID, &m.Title, &m.Duration, &m.CreatedAt, &createdDay,
		&checksJSON, &completed, &failed, &completedAt, &failedAt, &m.Version)
	if err == sql.ErrNoRows {
		return domain.Mission{}, ErrNotFound
	}
	if err != nil {
		return domain.Mission{}, err
	}
	m.CreatedDay = clock.Day(createdDay)
	m.Completed = completed != 0
	m.Failed = failed != 0
	if completedAt.Valid {
		m.CompletedAt = &completedAt.String
	}
	if failedAt.Valid {
		m.FailedAt = &failedAt.String
	}
	if err := json.Unmarshal([]byte(checksJSON), &m.Checks); err != nil {
		return domain.Mission{}, fmt.Errorf("mission %s checks: %w", m.ID, err)
	}
	return m, nil
}

func marshalChecks(checks []clock.Day) (string, error) {
	if checks == nil {
		checks = []clock.Day{}
	}
	b, err := json.Marshal(checks)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint failures in the error text.
	return strings.Contains(err.Error(), "constraint failed")
}
