// Package board maps mission progress onto the duration-specific display
// boards. Boards are pure views of {duration, checked count, completed,
// failed} plus the ordered check dates; they hold no state of their own.
package board

import (
	"streakline/internal/domain"
)

type Slot struct {
	Ordinal int    `json:"ordinal"`
	Label   string `json:"label"`
	Filled  bool   `json:"filled"`
	Date    string `json:"date,omitempty"`
}

type View struct {
	Layout    string `json:"layout"`
	Duration  int    `json:"duration"`
	Checked   int    `json:"checked"`
	Completed bool   `json:"completed"`
	Failed    bool   `json:"failed"`
	Slots     []Slot `json:"slots"`
}

// Layout names one board per challenge length.
func Layout(duration int) string {
	switch duration {
	case 7:
		return "grapes"
	case 10:
		return "stickers"
	case 14:
		return "constellation"
	case 30:
		return "garden"
	default:
		return "plain"
	}
}

var stickerLabels = []string{
	"heart", "star", "sun", "cloud", "dog", "cat", "fairy", "icecream", "bear", "clover",
}

func slotLabel(duration, ordinal int) string {
	switch duration {
	case 7:
		return "grape"
	case 10:
		return stickerLabels[(ordinal-1)%len(stickerLabels)]
	case 14:
		// Twin constellation: seven stars per twin.
		if ordinal <= 7 {
			return "pollux-star"
		}
		return "castor-star"
	case 30:
		// Growing tree: roots, then trunk, then foliage, crowned with blossoms.
		switch {
		case ordinal <= 3:
			return "root"
		case ordinal <= 9:
			return "trunk"
		case ordinal <= 12:
			return "foliage"
		case ordinal <= 24:
			return "leaf"
		default:
			return "blossom"
		}
	default:
		return "day"
	}
}

// For builds the board view for a mission.
func For(m domain.Mission) View {
	v := View{
		Layout:    Layout(m.Duration),
		Duration:  m.Duration,
		Checked:   len(m.Checks),
		Completed: m.Completed,
		Failed:    m.Failed,
		Slots:     make([]Slot, 0, m.Duration),
	}
	for i := 1; i <= m.Duration; i++ {
		s := Slot{
			Ordinal: i,
			Label:   slotLabel(m.Duration, i),
			Filled:  i <= len(m.Checks),
		}
		if s.Filled {
			s.Date = m.Checks[i-1].String()
		}
		v.Slots = append(v.Slots, s)
	}
	return v
}
