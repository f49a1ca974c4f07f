package models

type Difficulty string

const (
	DifficultyAny    Difficulty = ""
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulties or unset.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyAny, DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Points is the value of a question of this difficulty.
func (d Difficulty) Points() int {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 25
	case DifficultyHard:
		return 50
	}
	return 0
}

// RoomConfiguration is fixed when a room is created.
type RoomConfiguration struct {
	Category         *Category  `json:"category,omitempty"`
	Difficulty       Difficulty `json:"difficulty,omitempty"`
	MaxSeconds       int        `json:"maxSeconds"`
	CanSkipQuestions bool       `json:"canSkipQuestions"`
	QuestionCount    int        `json:"questionCount"` // 0 = unlimited
}

// RoomSummary is the lobby-facing view of a room.
type RoomSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PlayerCount  int    `json:"playerCount"`
	CategoryName string `json:"categoryName"`
	Difficulty   string `json:"difficulty"`
}

const anyLabel = "Any"

// NewRoomSummary fills the category and difficulty labels, using "Any"
// for unset values.
func NewRoomSummary(id, name string, players int, cfg RoomConfiguration) RoomSummary {
	summary := RoomSummary{
		ID:           id,
		Name:         name,
		PlayerCount:  players,
		CategoryName: anyLabel,
		Difficulty:   anyLabel,
	}
	if cfg.Category != nil {
		summary.CategoryName = cfg.Category.Name
	}
	if cfg.Difficulty != DifficultyAny {
		summary.Difficulty = string(cfg.Difficulty)
	}
	return summary
}
