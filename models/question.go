package models

// TriviaQuestion is one fetched question with its answers already shuffled.
type TriviaQuestion struct {
	Text               string     `json:"question"`
	Answers            []string   `json:"answers"`
	CorrectAnswerIndex int        `json:"-"`
	CategoryName       string     `json:"category"`
	Difficulty         Difficulty `json:"difficulty"`
}

// QuestionView is what members see while a question is open. It never
// carries the correct answer.
type QuestionView struct {
	Text           string     `json:"question"`
	Answers        []string   `json:"answers"`
	CategoryName   string     `json:"category"`
	Difficulty     Difficulty `json:"difficulty"`
	QuestionNumber int        `json:"questionNumber"`
	QuestionCount  int        `json:"questionCount"`
}

func (q *TriviaQuestion) View(number, count int) QuestionView {
	return QuestionView{
		Text:           q.Text,
		Answers:        q.Answers,
		CategoryName:   q.CategoryName,
		Difficulty:     q.Difficulty,
		QuestionNumber: number,
		QuestionCount:  count,
	}
}
