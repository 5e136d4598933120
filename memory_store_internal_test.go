package ballots

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemoryStore overflow", func() {

	var (
		ctx   context.Context
		store *MemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = NewMemoryStore()
	})

	It("aborts a voter insert once the counter is exhausted and changes nothing", func() {
		store.state.voters[math.MaxUint32] = Voter{Voter: "last"}
		store.state.lastVoterID = math.MaxUint32

		_, err := store.InsertVoter(ctx, Voter{Voter: "one too many"})
		Expect(IsFatal(err)).To(BeTrue(), "got %v", err)
		Expect(errors.Is(err, ErrIDOverflow)).To(BeTrue())

		voters, err := store.ListVoters(ctx)
		Expect(err).To(Succeed())
		Expect(voters).To(HaveLen(1))
		Expect(voters[0].VoterID).To(Equal(Identifier(math.MaxUint32)))
		Expect(store.state.lastVoterID).To(Equal(Identifier(math.MaxUint32)))
	})

	It("aborts a vote insert once the counter is exhausted", func() {
		store.state.lastVoteID = math.MaxUint32

		_, err := store.InsertVote(ctx, Vote{Voter: "late"})
		Expect(errors.Is(err, ErrIDOverflow)).To(BeTrue())

		votes, err := store.ListVotes(ctx)
		Expect(err).To(Succeed())
		Expect(votes).To(BeEmpty())
	})

	It("leaves the other collection usable", func() {
		store.state.lastVoteID = math.MaxUint32
		id, err := store.InsertVoter(ctx, Voter{Voter: "fine"})
		Expect(err).To(Succeed())
		Expect(id).To(Equal(Identifier(1)))
	})
})

var _ = Describe("MemoryStore writes", func() {
	var (
		ctx   context.Context
		store *MemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = NewMemoryStore()
	})

	It("writes into the live collections instead of a copy", func() {
		voters, votes := store.state.voters, store.state.votes

		voterID, err := store.InsertVoter(ctx, Voter{Voter: "alice"})
		Expect(err).To(Succeed())
		voteID, err := store.InsertVote(ctx, Vote{Voter: "alice", EvidenceID: 7})
		Expect(err).To(Succeed())
		Expect(store.UpdateVoter(ctx, voterID, Voter{Voter: "alice", CaseID: 2})).To(Succeed())

		Expect(voters).To(HaveKey(voterID))
		Expect(voters[voterID].CaseID).To(Equal(Identifier(2)))
		Expect(votes).To(HaveKey(voteID))

		Expect(store.DeleteVote(ctx, voteID)).To(Succeed())
		Expect(votes).To(BeEmpty())
	})

	It("keeps the recorded hash when a later switch is refused", func() {
		accepted := CodeHash{0x01}
		host := NewCodeRegistry(accepted)

		Expect(store.MigrateCode(ctx, host, accepted)).To(Succeed())
		err := store.MigrateCode(ctx, host, CodeHash{0x02})
		Expect(IsFatal(err)).To(BeTrue(), "got %v", err)

		Expect(store.state.hasCode).To(BeTrue())
		Expect(store.state.codeHash).To(Equal(accepted))
	})
})
