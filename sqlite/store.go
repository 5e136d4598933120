// Package sqlite persists the voter and vote collections in a SQLite file.
//
// Every call runs in a single transaction, so a failed or refused call leaves
// no trace in the file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	ballots "github.com/jicksta/case-ballots"
	"github.com/jicksta/case-ballots/internal/sqlitemigrate"
	"github.com/jicksta/case-ballots/sqlite/migrations"
	_ "modernc.org/sqlite"
)

var _ ballots.RecordStore = (*Store)(nil)

const (
	votersTable = "voters"
	votesTable  = "votes"
)

// Store persists ballots state in SQLite.
type Store struct {
	sqlDB  *sql.DB
	policy ballots.IDPolicy
}

type Option func(*Store)

// WithIDPolicy picks how inserts are assigned identifiers. The default is SequentialIDs.
func WithIDPolicy(policy ballots.IDPolicy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time matches the one-call-at-a-time contract.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store := &Store{sqlDB: sqlDB, policy: ballots.SequentialIDs}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// withTx commits only if fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// nextID reads the size and sequence of table and asks the policy for the next id.
func (s *Store) nextID(ctx context.Context, tx *sql.Tx, table string) (ballots.Identifier, error) {
	var size int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&size); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT last_id FROM id_sequences WHERE collection = ?`, table,
	).Scan(&last); err != nil {
		return 0, fmt.Errorf("read %s sequence: %w", table, err)
	}
	return s.policy.NextID(size, ballots.Identifier(last))
}

func advanceSequence(ctx context.Context, tx *sql.Tx, table string, id ballots.Identifier) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE id_sequences SET last_id = MAX(last_id, ?) WHERE collection = ?`,
		int64(id), table,
	)
	if err != nil {
		return fmt.Errorf("advance %s sequence: %w", table, err)
	}
	return nil
}

// InsertVoter stores voter under the next id. Under SizeDerivedIDs an
// occupied id is overwritten.
func (s *Store) InsertVoter(ctx context.Context, voter ballots.Voter) (ballots.Identifier, error) {
	var voterID ballots.Identifier
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		next, err := s.nextID(ctx, tx, votersTable)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO voters (id, case_id, voter, amount_hold, vote_credit)
			 VALUES (?, ?, ?, ?, ?)`,
			int64(next), int64(voter.CaseID), voter.Voter, voter.AmountHold.String(), voter.VoteCredit.String(),
		); err != nil {
			return fmt.Errorf("insert voter: %w", err)
		}
		voterID = next
		return advanceSequence(ctx, tx, votersTable, next)
	})
	return voterID, err
}

// InsertVote stores vote under the next id.
func (s *Store) InsertVote(ctx context.Context, vote ballots.Vote) (ballots.Identifier, error) {
	var voteID ballots.Identifier
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		next, err := s.nextID(ctx, tx, votesTable)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO votes (id, case_id, evidence_id, voter, yes_credit, no_credit, distribution_reward)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			int64(next), int64(vote.CaseID), int64(vote.EvidenceID), vote.Voter,
			vote.YesCredit, vote.NoCredit, vote.DistributionReward,
		); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
		voteID = next
		return advanceSequence(ctx, tx, votesTable, next)
	})
	return voteID, err
}

func (s *Store) DeleteVoter(ctx context.Context, voterID ballots.Identifier) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM voters WHERE id = ?`, int64(voterID))
		if err != nil {
			return fmt.Errorf("delete voter: %w", err)
		}
		return expectOneRow(result, ballots.ErrVoterNotFound)
	})
}

func (s *Store) DeleteVote(ctx context.Context, voteID ballots.Identifier) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE id = ?`, int64(voteID))
		if err != nil {
			return fmt.Errorf("delete vote: %w", err)
		}
		return expectOneRow(result, ballots.ErrVoteNotFound)
	})
}

func (s *Store) UpdateVoter(ctx context.Context, voterID ballots.Identifier, voter ballots.Voter) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE voters
			    SET case_id = ?, voter = ?, amount_hold = ?, vote_credit = ?
			  WHERE id = ?`,
			int64(voter.CaseID), voter.Voter, voter.AmountHold.String(), voter.VoteCredit.String(), int64(voterID),
		)
		if err != nil {
			return fmt.Errorf("update voter: %w", err)
		}
		return expectOneRow(result, ballots.ErrVoterNotFound)
	})
}

func (s *Store) UpdateVote(ctx context.Context, voteID ballots.Identifier, vote ballots.Vote) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE votes
			    SET case_id = ?, evidence_id = ?, voter = ?, yes_credit = ?, no_credit = ?, distribution_reward = ?
			  WHERE id = ?`,
			int64(vote.CaseID), int64(vote.EvidenceID), vote.Voter,
			vote.YesCredit, vote.NoCredit, vote.DistributionReward, int64(voteID),
		)
		if err != nil {
			return fmt.Errorf("update vote: %w", err)
		}
		return expectOneRow(result, ballots.ErrVoteNotFound)
	})
}

func expectOneRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

const (
	voterColumns = `id, case_id, voter, amount_hold, vote_credit`
	voteColumns  = `id, case_id, evidence_id, voter, yes_credit, no_credit, distribution_reward`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoter(row rowScanner) (ballots.VoterEntry, error) {
	var entry ballots.VoterEntry
	var amountHold, voteCredit string
	if err := row.Scan(&entry.VoterID, &entry.CaseID, &entry.Voter.Voter, &amountHold, &voteCredit); err != nil {
		return ballots.VoterEntry{}, err
	}
	var err error
	if entry.AmountHold, err = ballots.ParseBalance(amountHold); err != nil {
		return ballots.VoterEntry{}, fmt.Errorf("voter %d amount_hold: %w", entry.VoterID, err)
	}
	if entry.VoteCredit, err = ballots.ParseBalance(voteCredit); err != nil {
		return ballots.VoterEntry{}, fmt.Errorf("voter %d vote_credit: %w", entry.VoterID, err)
	}
	return entry, nil
}

func scanVote(row rowScanner) (ballots.VoteEntry, error) {
	var entry ballots.VoteEntry
	err := row.Scan(
		&entry.VoteID,
		&entry.CaseID,
		&entry.EvidenceID,
		&entry.Voter,
		&entry.YesCredit,
		&entry.NoCredit,
		&entry.DistributionReward,
	)
	return entry, err
}

func (s *Store) GetVoter(ctx context.Context, voterID ballots.Identifier) (ballots.VoterEntry, bool, error) {
	if err := s.ready(ctx); err != nil {
		return ballots.VoterEntry{}, false, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+voterColumns+` FROM voters WHERE id = ?`, int64(voterID))
	entry, err := scanVoter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ballots.VoterEntry{}, false, nil
	}
	if err != nil {
		return ballots.VoterEntry{}, false, fmt.Errorf("get voter: %w", err)
	}
	return entry, true, nil
}

func (s *Store) GetVote(ctx context.Context, voteID ballots.Identifier) (ballots.VoteEntry, bool, error) {
	if err := s.ready(ctx); err != nil {
		return ballots.VoteEntry{}, false, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = ?`, int64(voteID))
	entry, err := scanVote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ballots.VoteEntry{}, false, nil
	}
	if err != nil {
		return ballots.VoteEntry{}, false, fmt.Errorf("get vote: %w", err)
	}
	return entry, true, nil
}

func (s *Store) ListVoters(ctx context.Context) ([]ballots.VoterEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+voterColumns+` FROM voters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list voters: %w", err)
	}
	defer rows.Close()

	result := []ballots.VoterEntry{}
	for rows.Next() {
		entry, err := scanVoter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voter: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voters: %w", err)
	}
	return result, nil
}

func (s *Store) ListVotes(ctx context.Context) ([]ballots.VoteEntry, error) {
	return s.queryVotes(ctx, `SELECT `+voteColumns+` FROM votes ORDER BY id`)
}

// ListVotesForEvidence scans the votes table; evidence_id is deliberately not indexed.
func (s *Store) ListVotesForEvidence(ctx context.Context, evidenceID ballots.Identifier) ([]ballots.VoteEntry, error) {
	return s.queryVotes(ctx, `SELECT `+voteColumns+` FROM votes WHERE evidence_id = ? ORDER BY id`, int64(evidenceID))
}

func (s *Store) queryVotes(ctx context.Context, query string, args ...any) ([]ballots.VoteEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	result := []ballots.VoteEntry{}
	for rows.Next() {
		entry, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return result, nil
}

// MigrateCode stages the new hash, asks host to switch, and commits only if it agrees.
// If the commit fails after host accepted, the error is fatal: host now runs
// hash while the store still records the previous one.
func (s *Store) MigrateCode(ctx context.Context, host ballots.CodeHost, hash ballots.CodeHash) error {
	switched := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO code_state (singleton, code_hash) VALUES (1, ?)
			 ON CONFLICT(singleton) DO UPDATE SET code_hash = excluded.code_hash`,
			hash[:],
		); err != nil {
			return fmt.Errorf("stage code hash: %w", err)
		}
		if err := ballots.SwitchCode(ctx, host, hash); err != nil {
			return err
		}
		switched = true
		return nil
	})
	if err != nil && switched {
		return ballots.UnrecordedSwitch(hash, err)
	}
	if err != nil {
		return err
	}
	log.Printf("switched code hash to %s", hash)
	return nil
}

func (s *Store) CodeHash(ctx context.Context) (ballots.CodeHash, bool, error) {
	var hash ballots.CodeHash
	if err := s.ready(ctx); err != nil {
		return hash, false, err
	}
	var raw []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT code_hash FROM code_state WHERE singleton = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return hash, false, nil
	}
	if err != nil {
		return hash, false, fmt.Errorf("get code hash: %w", err)
	}
	if len(raw) != len(hash) {
		return hash, false, fmt.Errorf("stored code hash has %d bytes", len(raw))
	}
	copy(hash[:], raw)
	return hash, true, nil
}
