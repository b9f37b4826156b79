// Package tradelog records runs and their dispatch attempts in a
// local sqlite database, for auditing what the bot actually sent.
package tradelog

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	card_id INTEGER NOT NULL,
	dry_run INTEGER NOT NULL,
	pages_checked INTEGER NOT NULL DEFAULT 0,
	owners_seen INTEGER NOT NULL DEFAULT 0,
	trades_attempted INTEGER NOT NULL DEFAULT 0,
	trades_succeeded INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	time INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	my_instance INTEGER NOT NULL,
	their_instance INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	failure TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS attempts_run_id ON attempts(run_id);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = database.Exec(Schema)
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// RunSummary is what FinishRun writes back onto the run row.
type RunSummary struct {
	PagesChecked    int
	OwnersSeen      int
	TradesAttempted int
	TradesSucceeded int
}

func (s Store) StartRun(ctx context.Context, cardID int64, dryRun bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, card_id, dry_run) VALUES (?, ?, ?)`,
		time.Now().Unix(), cardID, boolInt(dryRun),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s Store) FinishRun(ctx context.Context, runID int64, summary RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
			finished_at = ?,
			pages_checked = ?,
			owners_seen = ?,
			trades_attempted = ?,
			trades_succeeded = ?
		WHERE id = ?`,
		time.Now().Unix(),
		summary.PagesChecked,
		summary.OwnersSeen,
		summary.TradesAttempted,
		summary.TradesSucceeded,
		runID,
	)
	return err
}

func (s Store) RecordAttempt(ctx context.Context, runID, receiverID, myInstance, theirInstance int64, succeeded bool, failure string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, time, receiver_id, my_instance, their_instance, succeeded, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().Unix(), receiverID, myInstance, theirInstance, boolInt(succeeded), failure,
	)
	return err
}

type Attempt struct {
	Time          time.Time
	ReceiverID    int64
	MyInstance    int64
	TheirInstance int64
	Succeeded     bool
	Failure       string
}

// RunAttempts returns a run's attempts in submission order.
func (s Store) RunAttempts(ctx context.Context, runID int64) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, receiver_id, my_instance, their_instance, succeeded, failure
		FROM attempts WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var ts int64
		var succeeded int
		err = rows.Scan(&ts, &a.ReceiverID, &a.MyInstance, &a.TheirInstance, &succeeded, &a.Failure)
		if err != nil {
			return nil, err
		}
		a.Time = time.Unix(ts, 0)
		a.Succeeded = succeeded != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
