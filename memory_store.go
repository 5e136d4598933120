package ballots

import (
	"context"
	"log"
	"sync"

	"github.com/jicksta/case-ballots/internal"
)

var _ RecordStore = (*MemoryStore)(nil)

type memoryState struct {
	voters      map[Identifier]Voter
	votes       map[Identifier]Vote
	lastVoterID Identifier
	lastVoteID  Identifier
	codeHash    CodeHash
	hasCode     bool
}

func newMemoryState() memoryState {
	return memoryState{
		voters: make(map[Identifier]Voter),
		votes:  make(map[Identifier]Vote),
	}
}

// MemoryStore keeps both collections in process. It is safe for concurrent
// use; calls are serialized.
type MemoryStore struct {
	mu     sync.RWMutex
	policy IDPolicy
	state  memoryState
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIDPolicy picks how inserts are assigned identifiers. The default is SequentialIDs.
func WithIDPolicy(policy IDPolicy) MemoryOption {
	return func(ms *MemoryStore) {
		ms.policy = policy
	}
}

// NewMemoryStore returns an empty store using SequentialIDs unless an option says otherwise.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	ms := &MemoryStore{policy: SequentialIDs, state: newMemoryState()}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

// apply runs fn under the write lock. fn must finish every check that can fail
// before it writes, so a failed call leaves the state untouched.
func (ms *MemoryStore) apply(ctx context.Context, fn func(*memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return fn(&ms.state)
}

func (ms *MemoryStore) view(ctx context.Context, fn func(*memoryState)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	fn(&ms.state)
	return nil
}

func (ms *MemoryStore) InsertVoter(ctx context.Context, voter Voter) (Identifier, error) {
	var voterID Identifier
	err := ms.apply(ctx, func(st *memoryState) error {
		next, err := ms.policy.NextID(len(st.voters), st.lastVoterID)
		if err != nil {
			return err
		}
		st.voters[next] = voter
		if next > st.lastVoterID {
			st.lastVoterID = next
		}
		voterID = next
		return nil
	})
	return voterID, err
}

func (ms *MemoryStore) InsertVote(ctx context.Context, vote Vote) (Identifier, error) {
	var voteID Identifier
	err := ms.apply(ctx, func(st *memoryState) error {
		next, err := ms.policy.NextID(len(st.votes), st.lastVoteID)
		if err != nil {
			return err
		}
		st.votes[next] = vote
		if next > st.lastVoteID {
			st.lastVoteID = next
		}
		voteID = next
		return nil
	})
	return voteID, err
}

func (ms *MemoryStore) DeleteVoter(ctx context.Context, voterID Identifier) error {
	return ms.apply(ctx, func(st *memoryState) error {
		if _, found := st.voters[voterID]; !found {
			return ErrVoterNotFound
		}
		delete(st.voters, voterID)
		return nil
	})
}

func (ms *MemoryStore) DeleteVote(ctx context.Context, voteID Identifier) error {
	return ms.apply(ctx, func(st *memoryState) error {
		if _, found := st.votes[voteID]; !found {
			return ErrVoteNotFound
		}
		delete(st.votes, voteID)
		return nil
	})
}

func (ms *MemoryStore) UpdateVoter(ctx context.Context, voterID Identifier, voter Voter) error {
	return ms.apply(ctx, func(st *memoryState) error {
		if _, found := st.voters[voterID]; !found {
			return ErrVoterNotFound
		}
		st.voters[voterID] = voter
		return nil
	})
}

func (ms *MemoryStore) UpdateVote(ctx context.Context, voteID Identifier, vote Vote) error {
	return ms.apply(ctx, func(st *memoryState) error {
		if _, found := st.votes[voteID]; !found {
			return ErrVoteNotFound
		}
		st.votes[voteID] = vote
		return nil
	})
}

func (ms *MemoryStore) GetVoter(ctx context.Context, voterID Identifier) (VoterEntry, bool, error) {
	var entry VoterEntry
	var found bool
	err := ms.view(ctx, func(st *memoryState) {
		var voter Voter
		if voter, found = st.voters[voterID]; found {
			entry = VoterEntry{VoterID: voterID, Voter: voter}
		}
	})
	return entry, found, err
}

func (ms *MemoryStore) GetVote(ctx context.Context, voteID Identifier) (VoteEntry, bool, error) {
	var entry VoteEntry
	var found bool
	err := ms.view(ctx, func(st *memoryState) {
		var vote Vote
		if vote, found = st.votes[voteID]; found {
			entry = VoteEntry{VoteID: voteID, Vote: vote}
		}
	})
	return entry, found, err
}

func (ms *MemoryStore) ListVoters(ctx context.Context) ([]VoterEntry, error) {
	result := []VoterEntry{}
	err := ms.view(ctx, func(st *memoryState) {
		for _, voterID := range internal.SortedKeys(st.voters) {
			result = append(result, VoterEntry{VoterID: voterID, Voter: st.voters[voterID]})
		}
	})
	return result, err
}

func (ms *MemoryStore) ListVotes(ctx context.Context) ([]VoteEntry, error) {
	return ms.filterVotes(ctx, func(Vote) bool { return true })
}

// ListVotesForEvidence scans every vote; there is no evidence index.
func (ms *MemoryStore) ListVotesForEvidence(ctx context.Context, evidenceID Identifier) ([]VoteEntry, error) {
	return ms.filterVotes(ctx, func(vote Vote) bool { return vote.EvidenceID == evidenceID })
}

func (ms *MemoryStore) filterVotes(ctx context.Context, keep func(Vote) bool) ([]VoteEntry, error) {
	result := []VoteEntry{}
	err := ms.view(ctx, func(st *memoryState) {
		for _, voteID := range internal.SortedKeys(st.votes) {
			if vote := st.votes[voteID]; keep(vote) {
				result = append(result, VoteEntry{VoteID: voteID, Vote: vote})
			}
		}
	})
	return result, err
}

func (ms *MemoryStore) MigrateCode(ctx context.Context, host CodeHost, hash CodeHash) error {
	return ms.apply(ctx, func(st *memoryState) error {
		if err := SwitchCode(ctx, host, hash); err != nil {
			return err
		}
		st.codeHash, st.hasCode = hash, true
		log.Printf("switched code hash to %s", hash)
		return nil
	})
}

func (ms *MemoryStore) CodeHash(ctx context.Context) (CodeHash, bool, error) {
	var hash CodeHash
	var found bool
	err := ms.view(ctx, func(st *memoryState) {
		hash, found = st.codeHash, st.hasCode
	})
	return hash, found, err
}
