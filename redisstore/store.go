// Package redisstore keeps the voter and vote collections in Redis hashes.
//
// Layout under a key prefix p:
//
//	p:voters      hash, voter id -> JSON voter
//	p:votes       hash, vote id -> JSON vote
//	p:seq:voters  highest voter id issued
//	p:seq:votes   highest vote id issued
//	p:code        current code hash
//
// Mutations run under WATCH/MULTI so each call lands whole or not at all.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
	ballots "github.com/jicksta/case-ballots"
)

var _ ballots.RecordStore = (*Store)(nil)

const defaultMaxRetries = 16

// ErrContention is returned when a call keeps losing its WATCH race.
var ErrContention = errors.New("redis transaction kept conflicting")

type collection struct {
	records  string
	sequence string
	notFound error
}

// Store is a RecordStore kept in Redis under one key prefix.
type Store struct {
	client     *redis.Client
	prefix     string
	policy     ballots.IDPolicy
	maxRetries int
}

// Option configures a Store.
type Option func(*Store)

// WithIDPolicy picks how inserts are assigned identifiers. The default is SequentialIDs.
func WithIDPolicy(policy ballots.IDPolicy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithMaxRetries bounds how often a conflicting transaction is retried.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New wraps client. Every key the store touches starts with prefix.
func New(client *redis.Client, prefix string, opts ...Option) *Store {
	store := &Store{
		client:     client,
		prefix:     prefix,
		policy:     ballots.SequentialIDs,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(suffix string) string {
	return s.prefix + ":" + suffix
}

func (s *Store) voters() collection {
	return collection{records: s.key("voters"), sequence: s.key("seq:voters"), notFound: ballots.ErrVoterNotFound}
}

func (s *Store) votes() collection {
	return collection{records: s.key("votes"), sequence: s.key("seq:votes"), notFound: ballots.ErrVoteNotFound}
}

func (s *Store) codeKey() string {
	return s.key("code")
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w on %v", ErrContention, keys)
}

func idField(id ballots.Identifier) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (s *Store) insert(ctx context.Context, c collection, record any) (ballots.Identifier, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}

	var assigned ballots.Identifier
	err = s.transact(ctx, func(tx *redis.Tx) error {
		size, err := tx.HLen(ctx, c.records).Result()
		if err != nil {
			return fmt.Errorf("size of %s: %w", c.records, err)
		}
		last, err := tx.Get(ctx, c.sequence).Uint64()
		if errors.Is(err, redis.Nil) {
			last = 0
		} else if err != nil {
			return fmt.Errorf("read %s: %w", c.sequence, err)
		}

		next, err := s.policy.NextID(int(size), ballots.Identifier(last))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.records, idField(next), payload)
			if uint64(next) > last {
				pipe.Set(ctx, c.sequence, uint64(next), 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		assigned = next
		return nil
	}, c.records, c.sequence)
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

func (s *Store) update(ctx context.Context, c collection, id ballots.Identifier, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, c.records, idField(id)).Result()
		if err != nil {
			return fmt.Errorf("check %s %d: %w", c.records, id, err)
		}
		if !exists {
			return c.notFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.records, idField(id), payload)
			return nil
		})
		return err
	}, c.records)
}

func (s *Store) remove(ctx context.Context, c collection, id ballots.Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := s.client.HDel(ctx, c.records, idField(id)).Result()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", c.records, err)
	}
	if removed == 0 {
		return c.notFound
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, c collection, id ballots.Identifier, into any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	payload, err := s.client.HGet(ctx, c.records, idField(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get from %s: %w", c.records, err)
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return false, fmt.Errorf("decode %s %d: %w", c.records, id, err)
	}
	return true, nil
}

type rawRecord struct {
	id      ballots.Identifier
	payload string
}

// loadAll returns every record of c in ascending id order.
func (s *Store) loadAll(ctx context.Context, c collection) ([]rawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields, err := s.client.HGetAll(ctx, c.records).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.records, err)
	}
	records := make([]rawRecord, 0, len(fields))
	for field, payload := range fields {
		id, err := ballots.ParseIdentifier(field)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.records, err)
		}
		records = append(records, rawRecord{id: id, payload: payload})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].id < records[j].id })
	return records, nil
}

func (s *Store) InsertVoter(ctx context.Context, voter ballots.Voter) (ballots.Identifier, error) {
	return s.insert(ctx, s.voters(), voter)
}

func (s *Store) InsertVote(ctx context.Context, vote ballots.Vote) (ballots.Identifier, error) {
	return s.insert(ctx, s.votes(), vote)
}

func (s *Store) DeleteVoter(ctx context.Context, voterID ballots.Identifier) error {
	return s.remove(ctx, s.voters(), voterID)
}

func (s *Store) DeleteVote(ctx context.Context, voteID ballots.Identifier) error {
	return s.remove(ctx, s.votes(), voteID)
}

func (s *Store) UpdateVoter(ctx context.Context, voterID ballots.Identifier, voter ballots.Voter) error {
	return s.update(ctx, s.voters(), voterID, voter)
}

func (s *Store) UpdateVote(ctx context.Context, voteID ballots.Identifier, vote ballots.Vote) error {
	return s.update(ctx, s.votes(), voteID, vote)
}

func (s *Store) GetVoter(ctx context.Context, voterID ballots.Identifier) (ballots.VoterEntry, bool, error) {
	var voter ballots.Voter
	found, err := s.fetch(ctx, s.voters(), voterID, &voter)
	if err != nil || !found {
		return ballots.VoterEntry{}, false, err
	}
	return ballots.VoterEntry{VoterID: voterID, Voter: voter}, true, nil
}

func (s *Store) GetVote(ctx context.Context, voteID ballots.Identifier) (ballots.VoteEntry, bool, error) {
	var vote ballots.Vote
	found, err := s.fetch(ctx, s.votes(), voteID, &vote)
	if err != nil || !found {
		return ballots.VoteEntry{}, false, err
	}
	return ballots.VoteEntry{VoteID: voteID, Vote: vote}, true, nil
}

func (s *Store) ListVoters(ctx context.Context) ([]ballots.VoterEntry, error) {
	records, err := s.loadAll(ctx, s.voters())
	if err != nil {
		return nil, err
	}
	result := make([]ballots.VoterEntry, 0, len(records))
	for _, record := range records {
		var voter ballots.Voter
		if err := json.Unmarshal([]byte(record.payload), &voter); err != nil {
			return nil, fmt.Errorf("decode voter %d: %w", record.id, err)
		}
		result = append(result, ballots.VoterEntry{VoterID: record.id, Voter: voter})
	}
	return result, nil
}

func (s *Store) ListVotes(ctx context.Context) ([]ballots.VoteEntry, error) {
	return s.filterVotes(ctx, func(ballots.Vote) bool { return true })
}

func (s *Store) ListVotesForEvidence(ctx context.Context, evidenceID ballots.Identifier) ([]ballots.VoteEntry, error) {
	return s.filterVotes(ctx, func(vote ballots.Vote) bool { return vote.EvidenceID == evidenceID })
}

func (s *Store) filterVotes(ctx context.Context, keep func(ballots.Vote) bool) ([]ballots.VoteEntry, error) {
	records, err := s.loadAll(ctx, s.votes())
	if err != nil {
		return nil, err
	}
	result := []ballots.VoteEntry{}
	for _, record := range records {
		var vote ballots.Vote
		if err := json.Unmarshal([]byte(record.payload), &vote); err != nil {
			return nil, fmt.Errorf("decode vote %d: %w", record.id, err)
		}
		if keep(vote) {
			result = append(result, ballots.VoteEntry{VoteID: record.id, Vote: vote})
		}
	}
	return result, nil
}

// MigrateCode asks host once and records hash only after it agrees. A single
// SET needs no WATCH, so nothing is retried. If the write fails after host
// accepted, the error is fatal: host now runs hash while the store still
// records the previous one.
func (s *Store) MigrateCode(ctx context.Context, host ballots.CodeHost, hash ballots.CodeHash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ballots.SwitchCode(ctx, host, hash); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.codeKey(), hash[:], 0).Err(); err != nil {
		return ballots.UnrecordedSwitch(hash, fmt.Errorf("set %s: %w", s.codeKey(), err))
	}
	log.Printf("switched code hash to %s", hash)
	return nil
}

func (s *Store) CodeHash(ctx context.Context) (ballots.CodeHash, bool, error) {
	var hash ballots.CodeHash
	if err := ctx.Err(); err != nil {
		return hash, false, err
	}
	raw, err := s.client.Get(ctx, s.codeKey()).Bytes()
	if errors.Is(err, redis.Nil) {
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
