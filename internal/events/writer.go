package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records a mission lifecycle event. Events are an audit trail, not a
// source of truth; the mission row is always written first.
func (w Writer) Append(ctx context.Context, evtType, ownerID, missionID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,owner_id,mission_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullable(ownerID), nullable(missionID), string(data))
	return err
}

// Latest returns the most recent events, newest first, optionally filtered.
func (w Writer) Latest(ctx context.Context, limit int, evtType, missionID string) ([]Row, error) {
	query := `SELECT id, ts, type, COALESCE(owner_id,''), COALESCE(mission_id,''), payload_json FROM events`
	var (
		clauses []string
		args    []any
	)
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if missionID != "" {
		clauses = append(clauses, "mission_id=?")
		args = append(args, missionID)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.TS, &r.Type, &r.OwnerID, &r.MissionID, &r.Payload); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type Row struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	OwnerID   string `json:"owner_id,omitempty"`
	MissionID string `json:"mission_id,omitempty"`
	Payload   string `json:"payload_json"`
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
