// Package learning tracks study sessions, flashcards, and notes.
package learning

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/aide-agent/aide/internal/actions"
)

// Flashcard is one question/answer pair with review bookkeeping.
type Flashcard struct {
	ID             int64      `json:"id"`
	Front          string     `json:"front"`
	Back           string     `json:"back"`
	Reviews        int        `json:"reviews"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Stats is the learning summary served over the API.
type Stats struct {
	StudyMinutesTotal int    `json:"study_minutes_total"`
	StudyMinutesWeek  int    `json:"study_minutes_week"`
	SessionsTotal     int    `json:"sessions_total"`
	ActiveSubject     string `json:"active_subject,omitempty"`
	Flashcards        int    `json:"flashcards"`
	Notes             int    `json:"notes"`
}

// Store owns the study, flashcard, and note tables.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore wraps a shared database handle and runs migrations.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate learning: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS study_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);

		CREATE TABLE IF NOT EXISTS flashcards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			front TEXT NOT NULL,
			back TEXT NOT NULL,
			reviews INTEGER NOT NULL DEFAULT 0,
			last_reviewed_at TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			body_md TEXT NOT NULL,
			body_html TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	return err
}

// activeSession returns the running study session, or nil.
func (s *Store) activeSession(ctx context.Context) (int64, string, time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject, started_at FROM study_sessions
		 WHERE ended_at IS NULL ORDER BY id DESC LIMIT 1`)

	var id int64
	var subject, started string
	if err := row.Scan(&id, &subject, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", time.Time{}, nil
		}
		return 0, "", time.Time{}, fmt.Errorf("query active session: %w", err)
	}
	startedAt, _ := time.Parse(time.RFC3339Nano, started)
	return id, subject, startedAt, nil
}

// StartSession begins a study session for a subject. One at a time.
func (s *Store) StartSession(ctx context.Context, subject string) error {
	id, active, _, err := s.activeSession(ctx)
	if err != nil {
		return err
	}
	if id != 0 {
		return fmt.Errorf("already studying %q", active)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO study_sessions (subject, started_at) VALUES (?, ?)`,
		subject, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// EndSession closes the running session and returns its subject and
// duration.
func (s *Store) EndSession(ctx context.Context) (string, time.Duration, error) {
	id, subject, startedAt, err := s.activeSession(ctx)
	if err != nil {
		return "", 0, err
	}
	if id == 0 {
		return "", 0, fmt.Errorf("no study session is running")
	}

	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE study_sessions SET ended_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), id); err != nil {
		return "", 0, fmt.Errorf("end session: %w", err)
	}
	return subject, now.Sub(startedAt), nil
}

// AddFlashcard stores a new card.
func (s *Store) AddFlashcard(ctx context.Context, front, back string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO flashcards (front, back, created_at) VALUES (?, ?, ?)`,
		front, back, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("add flashcard: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// ListFlashcards returns all cards, least-recently reviewed first so a
// review pass naturally cycles through the deck.
func (s *Store) ListFlashcards(ctx context.Context) ([]Flashcard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, front, back, reviews, last_reviewed_at, created_at FROM flashcards
		 ORDER BY last_reviewed_at IS NOT NULL, last_reviewed_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query flashcards: %w", err)
	}
	defer rows.Close()

	var cards []Flashcard
	for rows.Next() {
		var c Flashcard
		var reviewed sql.NullString
		var created string
		if err := rows.Scan(&c.ID, &c.Front, &c.Back, &c.Reviews, &reviewed, &created); err != nil {
			return nil, fmt.Errorf("scan flashcard: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		if reviewed.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, reviewed.String); err == nil {
				c.LastReviewedAt = &ts
			}
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// MarkReviewed bumps a card's review count.
func (s *Store) MarkReviewed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE flashcards SET reviews = reviews + 1, last_reviewed_at = ? WHERE id = ?`,
		s.now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	return nil
}

// SaveNote stores a markdown note alongside its rendered HTML.
func (s *Store) SaveNote(ctx context.Context, title, markdown string) (int64, error) {
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &html); err != nil {
		return 0, fmt.Errorf("render note: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (title, body_md, body_html, created_at) VALUES (?, ?, ?, ?)`,
		title, markdown, html.String(), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("save note: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// NoteHTML returns the rendered HTML for a note.
func (s *Store) NoteHTML(ctx context.Context, id int64) (string, error) {
	var html string
	err := s.db.QueryRowContext(ctx, `SELECT body_html FROM notes WHERE id = ?`, id).Scan(&html)
	if err != nil {
		return "", fmt.Errorf("note %d: %w", id, err)
	}
	return html, nil
}

// CollectStats builds the learning summary.
func (s *Store) CollectStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	weekAgo := s.now().AddDate(0, 0, -7).UTC().Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx,
		`SELECT started_at, ended_at FROM study_sessions WHERE ended_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var started, ended string
		if err := rows.Scan(&started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		startedAt, err1 := time.Parse(time.RFC3339Nano, started)
		endedAt, err2 := time.Parse(time.RFC3339Nano, ended)
		if err1 != nil || err2 != nil {
			continue
		}
		minutes := int(endedAt.Sub(startedAt).Minutes())
		stats.SessionsTotal++
		stats.StudyMinutesTotal += minutes
		if started >= weekAgo {
			stats.StudyMinutesWeek += minutes
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, subject, _, err := s.activeSession(ctx); err == nil {
		stats.ActiveSubject = subject
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flashcards`).Scan(&stats.Flashcards); err != nil {
		return nil, fmt.Errorf("count flashcards: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&stats.Notes); err != nil {
		return nil, fmt.Errorf("count notes: %w", err)
	}
	return stats, nil
}

// --- actions ---

func (s *Store) startSessionAction(ctx context.Context, p actions.Params) (string, error) {
	subject, err := p.String("subject")
	if err != nil {
		return "", err
	}
	if err := s.StartSession(ctx, subject); err != nil {
		return "", err
	}
	return "Study session started: " + subject, nil
}

func (s *Store) endSessionAction(ctx context.Context, p actions.Params) (string, error) {
	subject, elapsed, err := s.EndSession(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Studied %s for %d minutes.", subject, int(elapsed.Minutes())), nil
}

func (s *Store) addFlashcardAction(ctx context.Context, p actions.Params) (string, error) {
	front, err := p.String("front")
	if err != nil {
		return "", err
	}
	back, err := p.String("back")
	if err != nil {
		return "", err
	}
	id, err := s.AddFlashcard(ctx, front, back)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Flashcard %d added.", id), nil
}

func (s *Store) reviewFlashcardsAction(ctx context.Context, p actions.Params) (string, error) {
	count := p.IntOr("count", 5)
	cards, err := s.ListFlashcards(ctx)
	if err != nil {
		return "", err
	}
	if len(cards) == 0 {
		return "No flashcards to review.", nil
	}
	if count > len(cards) {
		count = len(cards)
	}

	var b strings.Builder
	for _, c := range cards[:count] {
		if err := s.MarkReviewed(ctx, c.ID); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", c.Front, c.Back)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Store) saveNoteAction(ctx context.Context, p actions.Params) (string, error) {
	title, err := p.String("title")
	if err != nil {
		return "", err
	}
	body, err := p.String("content")
	if err != nil {
		return "", err
	}
	id, err := s.SaveNote(ctx, title, body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Note %d saved: %s", id, title), nil
}

func (s *Store) statsAction(ctx context.Context, p actions.Params) (string, error) {
	stats, err := s.CollectStats(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Studied %d minutes this week (%d total over %d sessions). %d flashcards, %d notes.",
		stats.StudyMinutesWeek, stats.StudyMinutesTotal, stats.SessionsTotal, stats.Flashcards, stats.Notes), nil
}

// Actions returns the learning action set.
func (s *Store) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "start_study_session", Description: "Start a study session for a subject", Handler: s.startSessionAction},
		{Name: "end_study_session", Description: "End the running study session", Handler: s.endSessionAction},
		{Name: "add_flashcard", Description: "Add a flashcard with a front and back", Handler: s.addFlashcardAction},
		{Name: "review_flashcards", Description: "Review the least recently seen flashcards", Handler: s.reviewFlashcardsAction},
		{Name: "save_note", Description: "Save a markdown note", Handler: s.saveNoteAction},
		{Name: "learning_stats", Description: "Summarize study time, flashcards, and notes", Handler: s.statsAction},
	}
}
