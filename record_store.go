package ballots

import "context"

// RecordStore holds the voter and vote collections. Each call is applied in
// full or not at all.
type RecordStore interface {
	InsertVoter(ctx context.Context, voter Voter) (Identifier, error)
	InsertVote(ctx context.Context, vote Vote) (Identifier, error)

	DeleteVoter(ctx context.Context, voterID Identifier) error
	DeleteVote(ctx context.Context, voteID Identifier) error

	UpdateVoter(ctx context.Context, voterID Identifier, voter Voter) error
	UpdateVote(ctx context.Context, voteID Identifier, vote Vote) error

	// GetVoter and GetVote report absence through the bool, never through the error.
	GetVoter(ctx context.Context, voterID Identifier) (VoterEntry, bool, error)
	GetVote(ctx context.Context, voteID Identifier) (VoteEntry, bool, error)

	ListVoters(ctx context.Context) ([]VoterEntry, error)
	ListVotes(ctx context.Context) ([]VoteEntry, error)
	ListVotesForEvidence(ctx context.Context, evidenceID Identifier) ([]VoteEntry, error)

	MigrateCode(ctx context.Context, host CodeHost, hash CodeHash) error
	CodeHash(ctx context.Context) (CodeHash, bool, error)
}
