package models

// NoAnswer is the SelectedAnswerIndex of a member who has not answered the
// current question.
const NoAnswer = -1

// UserStatistics tracks one member's score inside one room.
type UserStatistics struct {
	Points              int `json:"points"`
	PointsChange        int `json:"pointsChange"`
	QuestionsRight      int `json:"questionsRight"`
	QuestionsWrong      int `json:"questionsWrong"`
	SelectedAnswerIndex int `json:"selectedAnswerIndex"`
}

func NewUserStatistics() *UserStatistics {
	return &UserStatistics{SelectedAnswerIndex: NoAnswer}
}

// Accuracy returns right/(right+wrong). ok is false when the member has
// not been graded yet.
func (s *UserStatistics) Accuracy() (ratio float64, ok bool) {
	total := s.QuestionsRight + s.QuestionsWrong
	if total == 0 {
		return 0, false
	}
	return float64(s.QuestionsRight) / float64(total), true
}

// UserStatsEntry is one row of the "set user stats" and "game over" events.
type UserStatsEntry struct {
	Nickname string `json:"nickname"`
	UserStatistics
}
