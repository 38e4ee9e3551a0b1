package domain

import "time"

// QuestionType distinguishes free-text questions from polls.
type QuestionType string

const (
	QuestionTypeText QuestionType = "text"
	QuestionTypePoll QuestionType = "poll"
)

// QuestionStatus is the lifecycle state of a question.
type QuestionStatus string

const (
	StatusActive  QuestionStatus = "active"
	StatusClosed  QuestionStatus = "closed"
	StatusDeleted QuestionStatus = "deleted"
)

// AnonymousRespondent replaces the student number and nickname on anonymous questions.
const AnonymousRespondent = "anonymous"

// MaxContentLength bounds the question prompt, counted in runes.
const MaxContentLength = 100

// Question is a prompt posed by a teacher.
type Question struct {
	ID            string         `json:"id"`
	TeacherID     string         `json:"teacherId"`
	TeacherName   string         `json:"teacherName"`
	Type          QuestionType   `json:"type"`
	Content       string         `json:"content"`
	PollOptions   []string       `json:"pollOptions,omitempty"`
	AllowMultiple bool           `json:"allowMultiple"`
	IsAnonymous   bool           `json:"isAnonymous"`
	Status        QuestionStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	ClosedAt      *time.Time     `json:"closedAt,omitempty"`
}

// HasOption reports whether label is one of the configured poll options.
func (q Question) HasOption(label string) bool {
	for _, opt := range q.PollOptions {
		if opt == label {
			return true
		}
	}
	return false
}

// Response is one student's answer to a question.
type Response struct {
	ID            string     `json:"id"`
	QuestionID    string     `json:"questionId"`
	StudentNumber string     `json:"studentNumber"`
	Nickname      string     `json:"nickname"`
	TextAnswer    string     `json:"textAnswer,omitempty"`
	DrawingData   string     `json:"drawingData,omitempty"`
	PollAnswer    []string   `json:"pollAnswer,omitempty"`
	IsInProgress  bool       `json:"isInProgress"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Submitted reports whether the response has left the in-progress state.
func (r Response) Submitted() bool {
	return !r.IsInProgress
}

// Respondent returns the identity pair attached to the response.
func (r Response) Respondent() Respondent {
	return Respondent{Number: r.StudentNumber, Nickname: r.Nickname}
}

// Respondent identifies a student within a question.
type Respondent struct {
	Number   string `json:"number"`
	Nickname string `json:"nickname"`
}

// ChangeKind tags a change event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is a row-level change on the responses of one question.
// For deletes only Response.ID and Response.QuestionID are meaningful.
type ChangeEvent struct {
	Kind     ChangeKind `json:"kind"`
	Response Response   `json:"response"`
}
