package ballots_test

import (
	"errors"
	"math"

	ballots "github.com/jicksta/case-ballots"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("IDPolicy", func() {

	DescribeTable("#NextID",
		func(policy ballots.IDPolicy, size int, last ballots.Identifier, expected ballots.Identifier) {
			next, err := policy.NextID(size, last)
			Expect(err).To(Succeed())
			Expect(next).To(Equal(expected))
		},
		Entry("sequential on an empty collection", ballots.SequentialIDs, 0, ballots.Identifier(0), ballots.Identifier(1)),
		Entry("sequential ignores deletes", ballots.SequentialIDs, 1, ballots.Identifier(2), ballots.Identifier(3)),
		Entry("size on an empty collection", ballots.SizeDerivedIDs, 0, ballots.Identifier(0), ballots.Identifier(1)),
		Entry("size shrinks after deletes", ballots.SizeDerivedIDs, 1, ballots.Identifier(2), ballots.Identifier(2)),
	)

	DescribeTable("overflow is fatal",
		func(policy ballots.IDPolicy, size int, last ballots.Identifier) {
			_, err := policy.NextID(size, last)
			Expect(ballots.IsFatal(err)).To(BeTrue())
			Expect(errors.Is(err, ballots.ErrIDOverflow)).To(BeTrue())
		},
		Entry("sequential", ballots.SequentialIDs, 0, ballots.Identifier(math.MaxUint32)),
		Entry("size", ballots.SizeDerivedIDs, math.MaxUint32, ballots.Identifier(0)),
	)

	DescribeTable("ParseIDPolicy",
		func(name string, expected ballots.IDPolicy) {
			policy, err := ballots.ParseIDPolicy(name)
			Expect(err).To(Succeed())
			Expect(policy).To(Equal(expected))
			Expect(policy.String()).NotTo(BeEmpty())
		},
		Entry("default", "", ballots.SequentialIDs),
		Entry("sequential", "sequential", ballots.SequentialIDs),
		Entry("size", "Size", ballots.SizeDerivedIDs),
	)

	It("rejects unknown policy names", func() {
		_, err := ballots.ParseIDPolicy("random")
		Expect(err).To(HaveOccurred())
	})
})
