// Package postgres stores questions and responses in Postgres through a pgx pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-response-service/internal/domain"
)

const questionColumns = `id, teacher_id, teacher_name, type, content, poll_options,
	allow_multiple, is_anonymous, status, created_at, closed_at`

const responseColumns = `id, question_id, student_number, nickname, text_answer,
	drawing_data, poll_answer, is_in_progress, submitted_at, created_at`

// QuestionRepository persists questions.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func (r *QuestionRepository) CreateQuestion(ctx context.Context, q domain.Question) error {
	options, err := encodeList(q.PollOptions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO questions (`+questionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.TeacherID, q.TeacherName, string(q.Type), q.Content, options,
		q.AllowMultiple, q.IsAnonymous, string(q.Status), q.CreatedAt, q.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := r.pool.Exec(ctx, `UPDATE questions SET
		teacher_name = $2, content = $3, poll_options = $4, allow_multiple = $5,
		is_anonymous = $6, status = $7, closed_at = $8
		WHERE id = $1`,
		q.ID, q.TeacherName, q.Content, options, q.AllowMultiple,
		q.IsAnonymous, string(q.Status), q.ClosedAt)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (r *QuestionRepository) ListQuestionsByTeacher(ctx context.Context, teacherID string) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions
		WHERE teacher_id = $1 ORDER BY created_at DESC`, teacherID)
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

// ResponseRepository persists responses.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

func (r *ResponseRepository) CreateResponse(ctx context.Context, resp domain.Response) error {
	answers, err := encodeList(resp.PollAnswer)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO responses (`+responseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		resp.ID, resp.QuestionID, resp.StudentNumber, resp.Nickname, resp.TextAnswer,
		resp.DrawingData, answers, resp.IsInProgress, resp.SubmittedAt, resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

func (r *ResponseRepository) GetResponse(ctx context.Context, id string) (domain.Response, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = $1`, id)
	resp, err := scanResponse(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := r.pool.Exec(ctx, `UPDATE responses SET
		text_answer = $2, drawing_data = $3, poll_answer = $4,
		is_in_progress = $5, submitted_at = $6, created_at = $7
		WHERE id = $1`,
		resp.ID, resp.TextAnswer, resp.DrawingData, answers,
		resp.IsInProgress, resp.SubmittedAt, resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResponseNotFound
	}
	return nil
}

func (r *ResponseRepository) DeleteResponse(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM responses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResponseNotFound
	}
	return nil
}

func (r *ResponseRepository) FindByRespondent(ctx context.Context, questionID, studentNumber, nickname string) (domain.Response, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+responseColumns+` FROM responses
		WHERE question_id = $1 AND student_number = $2 AND nickname = $3
		ORDER BY created_at DESC LIMIT 1`, questionID, studentNumber, nickname)
	resp, err := scanResponse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("find response: %w", err)
	}
	return resp, nil
}

func (r *ResponseRepository) ListResponsesByQuestion(ctx context.Context, questionID string) ([]domain.Response, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+responseColumns+` FROM responses
		WHERE question_id = $1 ORDER BY created_at, id`, questionID)
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
	rows, err := r.pool.Query(ctx, `SELECT question_id, count(*) FROM responses
		WHERE question_id = ANY($1) GROUP BY question_id`, questionIDs)
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

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q        domain.Question
		qType    string
		status   string
		options  []byte
		closedAt *time.Time
	)
	err := row.Scan(&q.ID, &q.TeacherID, &q.TeacherName, &qType, &q.Content, &options,
		&q.AllowMultiple, &q.IsAnonymous, &status, &q.CreatedAt, &closedAt)
	if err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qType)
	q.Status = domain.QuestionStatus(status)
	q.ClosedAt = closedAt
	if q.PollOptions, err = decodeList(options); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

func scanResponse(row pgx.Row) (domain.Response, error) {
	var (
		resp        domain.Response
		answers     []byte
		submittedAt *time.Time
	)
	err := row.Scan(&resp.ID, &resp.QuestionID, &resp.StudentNumber, &resp.Nickname,
		&resp.TextAnswer, &resp.DrawingData, &answers, &resp.IsInProgress, &submittedAt, &resp.CreatedAt)
	if err != nil {
		return domain.Response{}, err
	}
	resp.SubmittedAt = submittedAt
	if resp.PollAnswer, err = decodeList(answers); err != nil {
		return domain.Response{}, err
	}
	return resp, nil
}

// encodeList stores nil as an empty JSON array.
func encodeList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal list: %w", err)
	}
	return raw, nil
}

func decodeList(raw []byte) ([]string, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("unmarshal list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}
