package server

import (
	"streakline/internal/board"
	"streakline/internal/clock"
	"streakline/internal/domain"
)

// Request payloads

type CreateMissionRequest struct {
	Title    string `json:"title"`
	Duration int    `json:"duration" enum:"7,10,14,30"`
}

// Response payloads

type MissionResponse struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Duration    int         `json:"duration"`
	CreatedAt   string      `json:"created_at" format:"date-time"`
	CreatedDay  clock.Day   `json:"created_day"`
	ExpectedDay *clock.Day  `json:"expected_day,omitempty"`
	Checks      []clock.Day `json:"checks"`
	Completed   bool        `json:"completed"`
	Failed      bool        `json:"failed"`
	CompletedAt *string     `json:"completed_at,omitempty" format:"date-time"`
	FailedAt    *string     `json:"failed_at,omitempty" format:"date-time"`
	Board       string      `json:"board"`
}

type MissionDetailResponse struct {
	MissionResponse
	BoardView board.View `json:"board_view"`
}

type MissionListResponse struct {
	Missions []MissionResponse `json:"missions"`
}

type EventListResponse struct {
	Events []domain.Event `json:"events"`
}

func missionResponse(m domain.Mission) MissionResponse {
	r := MissionResponse{
		ID:          m.ID,
		Title:       m.Title,
		Duration:    m.Duration,
		CreatedAt:   m.CreatedAt,
		CreatedDay:  m.CreatedDay,
		Checks:      m.Checks,
		Completed:   m.Completed,
		Failed:      m.Failed,
		CompletedAt: m.CompletedAt,
		FailedAt:    m.FailedAt,
		Board:       board.Layout(m.Duration),
	}
	if r.Checks == nil {
		r.Checks = []clock.Day{}
	}
	if !m.Terminal() {
		expected := m.ExpectedDay()
		r.ExpectedDay = &expected
	}
	return r
}

func missionDetailResponse(m domain.Mission) MissionDetailResponse {
	return MissionDetailResponse{
		MissionResponse: missionResponse(m),
		BoardView:       board.For(m),
	}
}
