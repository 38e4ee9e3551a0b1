// Package sqlite stores questions and responses in a single SQLite file.
// It suits a single classroom machine where running Postgres is overkill.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"live-response-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
	id             TEXT PRIMARY KEY,
	teacher_id     TEXT    NOT NULL,
	teacher_name   TEXT    NOT NULL DEFAULT '',
	type           TEXT    NOT NULL,
	content        TEXT    NOT NULL,
	poll_options   TEXT    NOT NULL DEFAULT '[]',
	allow_multiple INTEGER NOT NULL DEFAULT 0,
	is_anonymous   INTEGER NOT NULL DEFAULT 0,
	status         TEXT    NOT NULL DEFAULT 'active',
	created_at     TEXT    NOT NULL,
	closed_at      TEXT
);
CREATE INDEX IF NOT EXISTS questions_teacher_created_idx ON questions (teacher_id, created_at);

CREATE TABLE IF NOT EXISTS responses (
	id             TEXT PRIMARY KEY,
	seq            INTEGER NOT NULL,
	question_id    TEXT    NOT NULL REFERENCES questions (id),
	student_number TEXT    NOT NULL DEFAULT '',
	nickname       TEXT    NOT NULL DEFAULT '',
	text_answer    TEXT    NOT NULL DEFAULT '',
	drawing_data   TEXT    NOT NULL DEFAULT '',
	poll_answer    TEXT    NOT NULL DEFAULT '[]',
	is_in_progress INTEGER NOT NULL DEFAULT 1,
	submitted_at   TEXT,
	created_at     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS responses_question_idx ON responses (question_id, created_at);
`

const timeLayout = time.RFC3339Nano

const questionColumns = `id, teacher_id, teacher_name, type, content, poll_options,
	allow_multiple, is_anonymous, status, created_at, closed_at`

const responseColumns = `id, question_id, student_number, nickname, text_answer,
	drawing_data, poll_answer, is_in_progress, submitted_at, created_at`

// DB is a SQLite database holding both repositories.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Questions returns the question repository.
func (d *DB) Questions() *QuestionRepository {
	return &QuestionRepository{db: d.db}
}

// Responses returns the response repository.
func (d *DB) Responses() *ResponseRepository {
	return &ResponseRepository{db: d.db}
}

type QuestionRepository struct {
	db *sql.DB
}

func (r *QuestionRepository) CreateQuestion(ctx context.Context, q domain.Question) error {
	options, err := encodeList(q.PollOptions)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO questions (`+questionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.TeacherID, q.TeacherName, string(q.Type), q.Content, options,
		q.AllowMultiple, q.IsAnonymous, string(q.Status), formatTime(q.CreatedAt), formatTimePtr(q.ClosedAt))
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

func (r *QuestionRepository) UpdateQuestion(ctx context.Context, q domain.Question) error {
	options, err := encodeList(q.PollOptions)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE questions SET
		teacher_name = ?, content = ?, poll_options = ?, allow_multiple = ?,
		is_anonymous = ?, status = ?, closed_at = ?
		WHERE id = ?`,
		q.TeacherName, q.Content, options, q.AllowMultiple,
		q.IsAnonymous, string(q.Status), formatTimePtr(q.ClosedAt), q.ID)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return affected(res, domain.ErrQuestionNotFound)
}

func (r *QuestionRepository) ListQuestionsByTeacher(ctx context.Context, teacherID string) ([]domain.Question, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions
		WHERE teacher_id = ? ORDER BY created_at DESC`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type ResponseRepository struct {
	db *sql.DB
}

func (r *ResponseRepository) CreateResponse(ctx context.Context, resp domain.Response) error {
	answers, err := encodeList(resp.PollAnswer)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO responses (seq, `+responseColumns+`)
		VALUES ((SELECT COALESCE(MAX(seq), 0) + 1 FROM responses), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.QuestionID, resp.StudentNumber, resp.Nickname, resp.TextAnswer,
		resp.DrawingData, answers, resp.IsInProgress, formatTimePtr(resp.SubmittedAt), formatTime(resp.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

func (r *ResponseRepository) GetResponse(ctx context.Context, id string) (domain.Response, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = ?`, id)
	resp, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("load response: %w", err)
	}
	return resp, nil
}

func (r *ResponseRepository) UpdateResponse(ctx context.Context, resp domain.Response) error {
	answers, err := encodeList(resp.PollAnswer)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE responses SET
		text_answer = ?, drawing_data = ?, poll_answer = ?,
		is_in_progress = ?, submitted_at = ?, created_at = ?
		WHERE id = ?`,
		resp.TextAnswer, resp.DrawingData, answers, resp.IsInProgress,
		formatTimePtr(resp.SubmittedAt), formatTime(resp.CreatedAt), resp.ID)
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	return affected(res, domain.ErrResponseNotFound)
}

func (r *ResponseRepository) DeleteResponse(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	return affected(res, domain.ErrResponseNotFound)
}

func (r *ResponseRepository) FindByRespondent(ctx context.Context, questionID, studentNumber, nickname string) (domain.Response, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM responses
		WHERE question_id = ? AND student_number = ? AND nickname = ?
		ORDER BY created_at DESC, seq DESC LIMIT 1`, questionID, studentNumber, nickname)
	resp, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("find response: %w", err)
	}
	return resp, nil
}

func (r *ResponseRepository) ListResponsesByQuestion(ctx context.Context, questionID string) ([]domain.Response, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+responseColumns+` FROM responses
		WHERE question_id = ? ORDER BY created_at, seq`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

func (r *ResponseRepository) CountResponsesByQuestion(ctx context.Context, questionIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(questionIDs))
	if len(questionIDs) == 0 {
		return counts, nil
	}
	args := make([]interface{}, len(questionIDs))
	for i, id := range questionIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(questionIDs)), ",")
	rows, err := r.db.QueryContext(ctx, `SELECT question_id, COUNT(*) FROM responses
		WHERE question_id IN (`+placeholders+`) GROUP BY question_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row scanner) (domain.Question, error) {
	var (
		q         domain.Question
		qType     string
		status    string
		options   string
		createdAt string
		closedAt  sql.NullString
	)
	err := row.Scan(&q.ID, &q.TeacherID, &q.TeacherName, &qType, &q.Content, &options,
		&q.AllowMultiple, &q.IsAnonymous, &status, &createdAt, &closedAt)
	if err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qType)
	q.Status = domain.QuestionStatus(status)
	if q.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Question{}, err
	}
	if q.ClosedAt, err = parseTimePtr(closedAt); err != nil {
		return domain.Question{}, err
	}
	if q.PollOptions, err = decodeList(options); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

func scanResponse(row scanner) (domain.Response, error) {
	var (
		resp        domain.Response
		answers     string
		submittedAt sql.NullString
		createdAt   string
	)
	err := row.Scan(&resp.ID, &resp.QuestionID, &resp.StudentNumber, &resp.Nickname,
		&resp.TextAnswer, &resp.DrawingData, &answers, &resp.IsInProgress, &submittedAt, &createdAt)
	if err != nil {
		return domain.Response{}, err
	}
	if resp.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Response{}, err
	}
	if resp.SubmittedAt, err = parseTimePtr(submittedAt); err != nil {
		return domain.Response{}, err
	}
	if resp.PollAnswer, err = decodeList(answers); err != nil {
		return domain.Response{}, err
	}
	return resp, nil
}

func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// formatTime stores UTC with a fixed-width layout so text ordering is time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(raw), nil
}

func decodeList(raw string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("unmarshal list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}
