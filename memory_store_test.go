package ballots_test

import (
	"context"
	"sync"

	ballots "github.com/jicksta/case-ballots"
	"github.com/jicksta/case-ballots/storetest"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = storetest.DescribeRecordStore("MemoryStore", func(policy ballots.IDPolicy) (ballots.RecordStore, func()) {
	return ballots.NewMemoryStore(ballots.WithIDPolicy(policy)), func() {}
})

var _ = Describe("MemoryStore", func() {

	It("implements the RecordStore interface", func() {
		var _ = ballots.RecordStore(ballots.NewMemoryStore())
	})

	It("hands out distinct ids to concurrent inserts", func() {
		store := ballots.NewMemoryStore()
		ctx := context.Background()

		var wg sync.WaitGroup
		ids := make(chan ballots.Identifier, 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				id, err := store.InsertVoter(ctx, storetest.Alice())
				Expect(err).To(Succeed())
				ids <- id
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[ballots.Identifier]bool{}
		for id := range ids {
			Expect(seen).NotTo(HaveKey(id))
			seen[id] = true
		}
		Expect(seen).To(HaveLen(50))
	})

	It("rejects calls on a cancelled context", func() {
		store := ballots.NewMemoryStore()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.InsertVoter(ctx, storetest.Alice())
		Expect(err).To(MatchError(context.Canceled))

		voters, err := store.ListVoters(context.Background())
		Expect(err).To(Succeed())
		Expect(voters).To(BeEmpty())
	})
})
