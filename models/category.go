package models

// Category is a question category offered by the trivia API.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
