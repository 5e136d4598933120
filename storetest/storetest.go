// Package storetest holds the ginkgo specs every ballots.RecordStore
// implementation has to pass.
package storetest

import (
	"context"
	"errors"

	ballots "github.com/jicksta/case-ballots"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// Factory opens an empty store that assigns identifiers with policy. The
// returned func releases whatever the store holds.
type Factory func(policy ballots.IDPolicy) (ballots.RecordStore, func())

// DescribeRecordStore registers the shared RecordStore specs under name.
func DescribeRecordStore(name string, open Factory) bool {
	return Describe(name, func() {
		var (
			ctx     context.Context
			store   ballots.RecordStore
			cleanup func()
		)

		openWith := func(policy ballots.IDPolicy) {
			if cleanup != nil {
				cleanup()
			}
			store, cleanup = open(policy)
		}

		BeforeEach(func() {
			ctx = context.Background()
			cleanup = nil
			openWith(ballots.SequentialIDs)
		})

		AfterEach(func() {
			if cleanup != nil {
				cleanup()
			}
		})

		insertVoter := func(v ballots.Voter) ballots.Identifier {
			id, err := store.InsertVoter(ctx, v)
			Expect(err).To(Succeed())
			return id
		}

		insertVote := func(v ballots.Vote) ballots.Identifier {
			id, err := store.InsertVote(ctx, v)
			Expect(err).To(Succeed())
			return id
		}

		voterIDs := func() []ballots.Identifier {
			entries, err := store.ListVoters(ctx)
			Expect(err).To(Succeed())
			var ids []ballots.Identifier
			for _, entry := range entries {
				ids = append(ids, entry.VoterID)
			}
			return ids
		}

		Describe("#InsertVoter", func() {
			It("returns an id that reads back the same voter", func() {
				alice := Alice()
				id := insertVoter(alice)

				got, found, err := store.GetVoter(ctx, id)
				Expect(err).To(Succeed())
				Expect(found).To(BeTrue())
				Expect(got.VoterID).To(Equal(id))
				Expect(got.Voter.Equal(alice)).To(BeTrue(), "got %+v, want %+v", got.Voter, alice)
			})

			It("starts counting at 1", func() {
				Expect(insertVoter(Alice())).To(Equal(ballots.Identifier(1)))
				Expect(insertVoter(Bob())).To(Equal(ballots.Identifier(2)))
			})

			It("keeps balances wider than 64 bits intact", func() {
				wide, err := ballots.ParseBalance("1267650600228229401496703205376")
				Expect(err).To(Succeed())
				voter := ballots.Voter{CaseID: 4, Voter: "whale", AmountHold: wide, VoteCredit: ballots.NewBalance(0)}
				id := insertVoter(voter)

				got, found, err := store.GetVoter(ctx, id)
				Expect(err).To(Succeed())
				Expect(found).To(BeTrue())
				Expect(got.AmountHold.String()).To(Equal("1267650600228229401496703205376"))
				Expect(got.VoteCredit.String()).To(Equal("0"))
			})
		})

		Describe("#InsertVote", func() {
			It("returns an id that reads back the same vote", func() {
				vote := VoteOn(7, "alice")
				id := insertVote(vote)

				got, found, err := store.GetVote(ctx, id)
				Expect(err).To(Succeed())
				Expect(found).To(BeTrue())
				Expect(got).To(Equal(ballots.VoteEntry{VoteID: id, Vote: vote}))
			})

			It("numbers votes independently of voters", func() {
				voterID := insertVoter(Alice())
				voteID := insertVote(VoteOn(1, "alice"))
				Expect(voterID).To(Equal(ballots.Identifier(1)))
				Expect(voteID).To(Equal(ballots.Identifier(1)))

				voter, _, _ := store.GetVoter(ctx, 1)
				vote, _, _ := store.GetVote(ctx, 1)
				Expect(voter.Voter.Voter).To(Equal("alice"))
				Expect(vote.EvidenceID).To(Equal(ballots.Identifier(1)))
			})
		})

		Describe("#GetVoter and #GetVote", func() {
			It("report absence without an error", func() {
				_, found, err := store.GetVoter(ctx, 42)
				Expect(err).To(Succeed())
				Expect(found).To(BeFalse())

				_, found, err = store.GetVote(ctx, 42)
				Expect(err).To(Succeed())
				Expect(found).To(BeFalse())
			})
		})

		Describe("#DeleteVoter", func() {
			It("removes the voter and fails the second time", func() {
				id := insertVoter(Alice())
				Expect(store.DeleteVoter(ctx, id)).To(Succeed())

				_, found, err := store.GetVoter(ctx, id)
				Expect(err).To(Succeed())
				Expect(found).To(BeFalse())

				err = store.DeleteVoter(ctx, id)
				Expect(errors.Is(err, ballots.ErrVoterNotFound)).To(BeTrue(), "got %v", err)
				Expect(errors.Is(err, ballots.ErrNotFound)).To(BeTrue())
			})

			It("leaves the voter's votes alone", func() {
				voterID := insertVoter(Alice())
				insertVote(VoteOn(3, "alice"))
				Expect(store.DeleteVoter(ctx, voterID)).To(Succeed())

				votes, err := store.ListVotes(ctx)
				Expect(err).To(Succeed())
				Expect(votes).To(HaveLen(1))
			})
		})

		Describe("#DeleteVote", func() {
			It("removes the vote and fails the second time", func() {
				id := insertVote(VoteOn(3, "bob"))
				Expect(store.DeleteVote(ctx, id)).To(Succeed())

				_, found, err := store.GetVote(ctx, id)
				Expect(err).To(Succeed())
				Expect(found).To(BeFalse())

				err = store.DeleteVote(ctx, id)
				Expect(errors.Is(err, ballots.ErrVoteNotFound)).To(BeTrue(), "got %v", err)
			})

			It("leaves voters alone", func() {
				insertVoter(Bob())
				voteID := insertVote(VoteOn(3, "bob"))
				Expect(store.DeleteVote(ctx, voteID)).To(Succeed())
				Expect(voterIDs()).To(Equal([]ballots.Identifier{1}))
			})
		})

		Describe("#UpdateVoter", func() {
			It("replaces the whole record", func() {
				id := insertVoter(Alice())
				replacement := ballots.Voter{CaseID: 9, Voter: "alice-2", AmountHold: ballots.NewBalance(0), VoteCredit: ballots.NewBalance(1)}
				Expect(store.UpdateVoter(ctx, id, replacement)).To(Succeed())

				got, found, err := store.GetVoter(ctx, id)
				Expect(err).To(Succeed())
				Expect(found).To(BeTrue())
				Expect(got.Voter.Equal(replacement)).To(BeTrue(), "got %+v, want %+v", got.Voter, replacement)
			})

			It("fails with ErrVoterNotFound for an absent id", func() {
				err := store.UpdateVoter(ctx, 5, Alice())
				Expect(errors.Is(err, ballots.ErrVoterNotFound)).To(BeTrue(), "got %v", err)
				Expect(voterIDs()).To(BeEmpty())
			})
		})

		Describe("#UpdateVote", func() {
			It("replaces the whole record", func() {
				id := insertVote(ballots.Vote{CaseID: 1, EvidenceID: 2, Voter: "carol", YesCredit: 3, NoCredit: 4, DistributionReward: 5})
				replacement := ballots.Vote{CaseID: 1, EvidenceID: 6, Voter: "carol"}
				Expect(store.UpdateVote(ctx, id, replacement)).To(Succeed())

				got, _, err := store.GetVote(ctx, id)
				Expect(err).To(Succeed())
				Expect(got.Vote).To(Equal(replacement))
			})

			It("fails with ErrVoteNotFound on an empty store", func() {
				err := store.UpdateVote(ctx, 999, VoteOn(1, "anyone"))
				Expect(errors.Is(err, ballots.ErrVoteNotFound)).To(BeTrue(), "got %v", err)
			})
		})

		Describe("#ListVoters", func() {
			It("returns an empty slice for an empty store", func() {
				entries, err := store.ListVoters(ctx)
				Expect(err).To(Succeed())
				Expect(entries).NotTo(BeNil())
				Expect(entries).To(BeEmpty())
			})

			It("returns entries in ascending id order across inserts and deletes", func() {
				for i := 0; i < 5; i++ {
					insertVoter(Alice())
				}
				Expect(store.DeleteVoter(ctx, 2)).To(Succeed())
				Expect(store.DeleteVoter(ctx, 4)).To(Succeed())
				insertVoter(Bob())

				Expect(voterIDs()).To(Equal([]ballots.Identifier{1, 3, 5, 6}))
			})
		})

		Describe("#ListVotes", func() {
			It("returns every vote in ascending id order", func() {
				insertVote(VoteOn(1, "a"))
				insertVote(VoteOn(2, "b"))
				insertVote(VoteOn(1, "c"))

				entries, err := store.ListVotes(ctx)
				Expect(err).To(Succeed())
				Expect(entries).To(HaveLen(3))
				for i, entry := range entries {
					Expect(entry.VoteID).To(Equal(ballots.Identifier(i + 1)))
				}
			})
		})

		Describe("#ListVotesForEvidence", func() {
			BeforeEach(func() {
				for _, evidenceID := range []ballots.Identifier{7, 8, 7, 9, 7} {
					insertVote(VoteOn(evidenceID, "voter"))
				}
			})

			It("returns exactly the matching votes in id order", func() {
				entries, err := store.ListVotesForEvidence(ctx, 7)
				Expect(err).To(Succeed())

				var ids []ballots.Identifier
				for _, entry := range entries {
					Expect(entry.EvidenceID).To(Equal(ballots.Identifier(7)))
					ids = append(ids, entry.VoteID)
				}
				Expect(ids).To(Equal([]ballots.Identifier{1, 3, 5}))
			})

			It("returns an empty slice when nothing matches", func() {
				entries, err := store.ListVotesForEvidence(ctx, 42)
				Expect(err).To(Succeed())
				Expect(entries).NotTo(BeNil())
				Expect(entries).To(BeEmpty())
			})

			It("follows updates that move a vote to other evidence", func() {
				Expect(store.UpdateVote(ctx, 3, VoteOn(8, "voter"))).To(Succeed())
				entries, err := store.ListVotesForEvidence(ctx, 8)
				Expect(err).To(Succeed())
				Expect(entries).To(HaveLen(2))
				Expect(entries[0].VoteID).To(Equal(ballots.Identifier(2)))
				Expect(entries[1].VoteID).To(Equal(ballots.Identifier(3)))
			})
		})

		Describe("identifier assignment", func() {
			scenario := func() {
				Expect(insertVoter(Alice())).To(Equal(ballots.Identifier(1)))
				Expect(insertVoter(Bob())).To(Equal(ballots.Identifier(2)))
				Expect(store.DeleteVoter(ctx, 1)).To(Succeed())
			}

			Context("with SequentialIDs", func() {
				It("never reissues a deleted id", func() {
					scenario()
					Expect(insertVoter(Carol())).To(Equal(ballots.Identifier(3)))
					Expect(voterIDs()).To(Equal([]ballots.Identifier{2, 3}))

					bob, _, err := store.GetVoter(ctx, 2)
					Expect(err).To(Succeed())
					Expect(bob.Voter.Voter).To(Equal("bob"))
				})
			})

			Context("with SizeDerivedIDs", func() {
				BeforeEach(func() {
					openWith(ballots.SizeDerivedIDs)
				})

				It("assigns size+1 and replaces the record already there", func() {
					scenario()
					Expect(insertVoter(Carol())).To(Equal(ballots.Identifier(2)))
					Expect(voterIDs()).To(Equal([]ballots.Identifier{2}))

					got, _, err := store.GetVoter(ctx, 2)
					Expect(err).To(Succeed())
					Expect(got.Voter.Voter).To(Equal("carol"))
				})

				It("can assign an id below ones still in use", func() {
					for i := 0; i < 4; i++ {
						insertVoter(Alice())
					}
					Expect(store.DeleteVoter(ctx, 2)).To(Succeed())
					Expect(store.DeleteVoter(ctx, 3)).To(Succeed())
					Expect(insertVoter(Bob())).To(Equal(ballots.Identifier(3)))
					Expect(voterIDs()).To(Equal([]ballots.Identifier{1, 3, 4}))
				})
			})
		})

		Describe("#MigrateCode", func() {
			var accepted, unknown ballots.CodeHash

			BeforeEach(func() {
				accepted[0], unknown[0] = 0xaa, 0xbb
			})

			It("records the hash the host accepts", func() {
				host := ballots.NewCodeRegistry(accepted)
				Expect(store.MigrateCode(ctx, host, accepted)).To(Succeed())

				hash, found, err := store.CodeHash(ctx)
				Expect(err).To(Succeed())
				Expect(found).To(BeTrue())
				Expect(hash).To(Equal(accepted))
			})

			It("aborts fatally and keeps the previous hash when the host refuses", func() {
				host := ballots.NewCodeRegistry(accepted)
				Expect(store.MigrateCode(ctx, host, accepted)).To(Succeed())

				err := store.MigrateCode(ctx, host, unknown)
				Expect(ballots.IsFatal(err)).To(BeTrue(), "got %v", err)
				Expect(errors.Is(err, ballots.ErrMigrationRejected)).To(BeTrue())
				Expect(errors.Is(err, ballots.ErrUnknownCode)).To(BeTrue())

				hash, _, err := store.CodeHash(ctx)
				Expect(err).To(Succeed())
				Expect(hash).To(Equal(accepted))
			})

			It("refuses when no host is configured", func() {
				err := store.MigrateCode(ctx, nil, accepted)
				Expect(ballots.IsFatal(err)).To(BeTrue())

				_, found, err := store.CodeHash(ctx)
				Expect(err).To(Succeed())
				Expect(found).To(BeFalse())
			})
		})
	})
}

func Alice() ballots.Voter {
	return ballots.Voter{CaseID: 1, Voter: "alice", AmountHold: ballots.NewBalance(100), VoteCredit: ballots.NewBalance(10)}
}

func Bob() ballots.Voter {
	return ballots.Voter{CaseID: 1, Voter: "bob", AmountHold: ballots.NewBalance(50), VoteCredit: ballots.NewBalance(5)}
}

func Carol() ballots.Voter {
	return ballots.Voter{CaseID: 2, Voter: "carol", AmountHold: ballots.NewBalance(20), VoteCredit: ballots.NewBalance(2)}
}

// VoteOn returns a yes-leaning ballot from voter on evidenceID in case 1.
func VoteOn(evidenceID ballots.Identifier, voter string) ballots.Vote {
	return ballots.Vote{CaseID: 1, EvidenceID: evidenceID, Voter: voter, YesCredit: 3, NoCredit: 1, DistributionReward: 2}
}
