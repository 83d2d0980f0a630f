// Package answer turns a natural-language question into a read-only SQL
// query over the documented schema, runs it and records the outcome.
package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/db"
	"github.com/drugcrow/crow/cmd/crow/cli/llm"
	"github.com/drugcrow/crow/cmd/crow/cli/logging"
	"github.com/drugcrow/crow/cmd/crow/cli/prompt"
	"github.com/drugcrow/crow/cmd/crow/cli/schema"
	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

var (
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrSuspiciousQuestion is returned when the question looks like SQL injection.
	ErrSuspiciousQuestion = errors.New("question rejected as suspicious")
	// ErrNoColumns is returned when the model picks no known column.
	ErrNoColumns = errors.New("no relevant columns selected")
	// ErrUnsafeSQL is returned when the generated query is not a single read-only statement.
	ErrUnsafeSQL = errors.New("generated SQL is not a single read-only query")
)

// Warehouse executes generated queries.
type Warehouse interface {
	QueryText(ctx context.Context, query string, limit int) (string, error)
}

// History stores answered questions.
type History interface {
	Record(ctx context.Context, r db.AnswerRecord) error
}

// Answer is the outcome of one question.
type Answer struct {
	ID       string        `json:"id"`
	Question string        `json:"question"`
	Columns  []string      `json:"columns"`
	SQL      string        `json:"sql"`
	Result   string        `json:"data"`
	Elapsed  time.Duration `json:"-"`
}

// Service answers questions. Graph and History are optional.
type Service struct {
	LLM       llm.Client
	Tables    []schema.Table
	Graph     *schemagraph.Graph
	Warehouse Warehouse
	History   History
	Logger    *zap.Logger
	RowLimit  int
	Dialect   string

	vocabOnce sync.Once
	vocab     []string
	vocabSet  map[string]string

	idMu    sync.Mutex
	entropy *rand.Rand
}

// Answer runs the full question-to-result pipeline. The attempt is
// recorded in History whether or not it succeeds.
func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	started := time.Now()
	question = strings.TrimSpace(question)
	a := &Answer{ID: s.newID(), Question: question}

	err := s.answer(ctx, a)
	a.Elapsed = time.Since(started)
	s.record(ctx, a, started, err)
	if err != nil {
		s.logger().Info("answer failed",
			zap.String("id", a.ID),
			zap.String("question", logging.Truncate(question, logging.MaxQueryLogLength)),
			zap.String("error", logging.SanitizeError(err)))
		return a, err
	}
	s.logger().Info("answered",
		zap.String("id", a.ID),
		zap.Strings("columns", a.Columns),
		zap.String("sql", logging.SanitizeQuery(a.SQL)),
		zap.Duration("elapsed", a.Elapsed))
	return a, nil
}

func (s *Service) answer(ctx context.Context, a *Answer) error {
	if err := CheckQuestion(a.Question); err != nil {
		return err
	}

	cols, err := s.selectColumns(ctx, a.Question)
	if err != nil {
		return err
	}
	a.Columns = cols

	contextJSON, err := s.contextFor(cols)
	if err != nil {
		return err
	}

	resp, err := s.LLM.Complete(ctx, prompt.SQLSystem, prompt.SQLPrompt(a.Question, cols, contextJSON, s.Dialect))
	if err != nil {
		return fmt.Errorf("generate sql: %w", err)
	}
	query, err := llm.ExtractSQL(resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeSQL, err)
	}
	query, err = db.CheckReadOnly(query)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeSQL, err)
	}
	a.SQL = query

	if s.Warehouse == nil {
		return errors.New("no warehouse configured")
	}
	text, err := s.Warehouse.QueryText(ctx, query, s.RowLimit)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	a.Result = text
	return nil
}

// CheckQuestion rejects blank questions and ones libinjection flags.
func CheckQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyQuestion
	}
	if sqli, fp := libinjection.IsSQLi(question); sqli {
		return fmt.Errorf("%w (fingerprint %s)", ErrSuspiciousQuestion, fp)
	}
	return nil
}

// selectColumns asks the model for the relevant columns and keeps only
// names in the vocabulary, upper-cased and de-duplicated in model order.
func (s *Service) selectColumns(ctx context.Context, question string) ([]string, error) {
	vocab, known := s.vocabulary()
	resp, err := s.LLM.Complete(ctx, prompt.ColumnSelectionSystem, prompt.ColumnSelectionPrompt(question, vocab))
	if err != nil {
		return nil, fmt.Errorf("select columns: %w", err)
	}
	picked, err := llm.ParseJSONResponse[[]string](resp)
	if err != nil {
		return nil, fmt.Errorf("select columns: %w", err)
	}

	var out []string
	seen := make(map[string]bool)
	for _, p := range picked {
		name, ok := known[strings.ToUpper(strings.TrimSpace(p))]
		if !ok {
			s.logger().Debug("dropping unknown column", zap.String("column", p))
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, ErrNoColumns
	}
	return out, nil
}

func (s *Service) vocabulary() ([]string, map[string]string) {
	s.vocabOnce.Do(func() {
		s.vocab = schema.ColumnNames(s.Tables)
		s.vocabSet = make(map[string]string, len(s.vocab))
		for _, v := range s.vocab {
			s.vocabSet[v] = v
		}
	})
	return s.vocab, s.vocabSet
}

// contextFor collects the schema records of the tables owning cols and of
// the tables on the shortest path between consecutive columns.
func (s *Service) contextFor(cols []string) (string, error) {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		key := strings.ToUpper(name)
		if seen[key] {
			return
		}
		seen[key] = true
		names = append(names, name)
	}

	for _, c := range cols {
		for _, t := range schema.TablesWithColumn(s.Tables, c) {
			add(t)
		}
	}
	if s.Graph != nil {
		for i := 1; i < len(cols); i++ {
			steps, err := s.Graph.ShortestPath(cols[i-1], cols[i])
			if err != nil {
				s.logger().Debug("no path between columns",
					zap.String("start", cols[i-1]), zap.String("end", cols[i]), zap.Error(err))
				continue
			}
			for _, t := range schemagraph.TablesOn(steps) {
				add(t)
			}
		}
	}

	records := make([]schema.Table, 0, len(names))
	for _, n := range names {
		if t, ok := schema.Find(s.Tables, n); ok {
			records = append(records, *t)
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	return string(data), nil
}

func (s *Service) record(ctx context.Context, a *Answer, started time.Time, err error) {
	if s.History == nil {
		return
	}
	r := db.AnswerRecord{
		ID:        a.ID,
		AskedAt:   started,
		Question:  a.Question,
		Columns:   a.Columns,
		SQL:       a.SQL,
		OK:        err == nil,
		ElapsedMS: a.Elapsed.Milliseconds(),
	}
	if err != nil {
		r.Error = logging.SanitizeError(err)
	}
	// The caller's context may already be cancelled.
	if rerr := s.History.Record(context.WithoutCancel(ctx), r); rerr != nil {
		s.logger().Warn("record answer", zap.String("id", a.ID), zap.Error(rerr))
	}
}

func (s *Service) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if s.entropy == nil {
		s.entropy = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
