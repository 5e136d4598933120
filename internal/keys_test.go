package internal

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("SortedKeys", func() {
	It("returns keys in ascending order", func() {
		Expect(SortedKeys(map[uint32]string{5: "e", 1: "a", 3: "c"})).To(Equal([]uint32{1, 3, 5}))
	})

	It("returns an empty, non-nil slice for an empty map", func() {
		keys := SortedKeys(map[uint32]bool{})
		Expect(keys).NotTo(BeNil())
		Expect(keys).To(BeEmpty())
	})
})
