package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AnswerRecord is one row of the answers history.
type AnswerRecord struct {
	ID        string    `json:"id"`
	AskedAt   time.Time `json:"asked_at"`
	Question  string    `json:"question"`
	Columns   []string  `json:"columns,omitempty"`
	SQL       string    `json:"sql,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// InsertAnswer appends one answer to the history.
func InsertAnswer(ctx context.Context, e Execer, r AnswerRecord) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO answers (id, asked_at, question, selected_columns, sql_text, ok, error_message, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AskedAt.UTC(), r.Question, nullIfEmpty(strings.Join(r.Columns, ",")),
		nullIfEmpty(r.SQL), r.OK, nullIfEmpty(r.Error), r.ElapsedMS)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// RecentAnswers returns up to limit answers, newest first.
func RecentAnswers(ctx context.Context, d *sql.DB, limit int) ([]AnswerRecord, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT id, asked_at, question, selected_columns, sql_text, ok, error_message, elapsed_ms
		 FROM answers ORDER BY asked_at DESC, id DESC LIMIT `+strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []AnswerRecord
	for rows.Next() {
		var (
			r                   AnswerRecord
			cols, sqlText, errS sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.AskedAt, &r.Question, &cols, &sqlText, &r.OK, &errS, &r.ElapsedMS); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if cols.String != "" {
			r.Columns = strings.Split(cols.String, ",")
		}
		r.SQL = sqlText.String
		r.Error = errS.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// AnswerLog records answers into the local store.
type AnswerLog struct {
	DB *sql.DB
}

// Record inserts r.
func (l AnswerLog) Record(ctx context.Context, r AnswerRecord) error {
	return InsertAnswer(ctx, l.DB, r)
}
