package types

import "strconv"

// QuestionDOMID returns the id of the question bubble at position.
func QuestionDOMID(position int) string {
	return "question-" + strconv.Itoa(position)
}

// AnswerDOMID returns the id of the answer bubble at position.
func AnswerDOMID(position int) string {
	return "answer-" + strconv.Itoa(position)
}
