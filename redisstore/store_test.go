package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	ballots "github.com/jicksta/case-ballots"
	"github.com/jicksta/case-ballots/storetest"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// Specs run against an in-process miniredis unless BALLOTS_TEST_REDIS_ADDR
// names a disposable server.
const redisAddrEnv = "BALLOTS_TEST_REDIS_ADDR"

var prefixCounter int64

func openTestStore(policy ballots.IDPolicy) (*Store, func()) {
	var server *miniredis.Miniredis
	addr := os.Getenv(redisAddrEnv)
	if addr == "" {
		var err error
		server, err = miniredis.Run()
		Expect(err).To(Succeed())
		addr = server.Addr()
	}
	client, err := Connect(context.Background(), addr)
	Expect(err).To(Succeed())

	prefix := fmt.Sprintf("ballots-test-%d-%d", time.Now().UnixNano(), atomic.AddInt64(&prefixCounter, 1))
	store := New(client, prefix, WithIDPolicy(policy))
	return store, func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+":*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
		if server != nil {
			server.Close()
		}
	}
}

type countingHost struct {
	ballots.CodeHost
	calls int
}

func (h *countingHost) SetCodeHash(ctx context.Context, hash ballots.CodeHash) error {
	h.calls++
	return h.CodeHost.SetCodeHash(ctx, hash)
}

var _ = storetest.DescribeRecordStore("Redis Store", func(policy ballots.IDPolicy) (ballots.RecordStore, func()) {
	return openTestStore(policy)
})

var _ = Describe("Store keys", func() {
	It("namespaces every key under the prefix", func() {
		store := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "tenant")
		defer store.Close()

		Expect(store.voters().records).To(Equal("tenant:voters"))
		Expect(store.voters().sequence).To(Equal("tenant:seq:voters"))
		Expect(store.votes().records).To(Equal("tenant:votes"))
		Expect(store.votes().sequence).To(Equal("tenant:seq:votes"))
		Expect(store.codeKey()).To(Equal("tenant:code"))
	})

	It("maps each collection to its own NotFound", func() {
		store := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "tenant")
		defer store.Close()

		Expect(store.voters().notFound).To(Equal(ballots.ErrVoterNotFound))
		Expect(store.votes().notFound).To(Equal(ballots.ErrVoteNotFound))
	})

	It("ignores non-positive retry limits", func() {
		store := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "tenant", WithMaxRetries(0))
		defer store.Close()
		Expect(store.maxRetries).To(Equal(defaultMaxRetries))
	})
})

var _ = Describe("Store transactions", func() {
	var (
		ctx     context.Context
		store   *Store
		cleanup func()
	)

	BeforeEach(func() {
		ctx = context.Background()
		store, cleanup = openTestStore(ballots.SequentialIDs)
	})

	AfterEach(func() {
		cleanup()
	})

	It("aborts an insert at the end of the id space without writing", func() {
		Expect(store.client.Set(ctx, store.voters().sequence, uint64(4294967295), 0).Err()).To(Succeed())

		_, err := store.InsertVoter(ctx, storetest.Alice())
		Expect(ballots.IsFatal(err)).To(BeTrue(), "got %v", err)

		size, err := store.client.HLen(ctx, store.voters().records).Result()
		Expect(err).To(Succeed())
		Expect(size).To(BeZero())
	})

	It("retries a transaction that lost its WATCH race", func() {
		key := store.key("contended")
		attempts := 0
		err := store.transact(ctx, func(tx *redis.Tx) error {
			attempts++
			if attempts == 1 {
				Expect(store.client.Set(ctx, key, "other writer", 0).Err()).To(Succeed())
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, "mine", 0)
				return nil
			})
			return err
		}, key)

		Expect(err).To(Succeed())
		Expect(attempts).To(Equal(2))
		Expect(store.client.Get(ctx, key).Val()).To(Equal("mine"))
	})

	It("gives up with ErrContention after the retry limit", func() {
		store.maxRetries = 3
		key := store.key("contended")
		attempts := 0
		err := store.transact(ctx, func(tx *redis.Tx) error {
			attempts++
			Expect(store.client.Incr(ctx, key).Err()).To(Succeed())
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, "mine", 0)
				return nil
			})
			return err
		}, key)

		Expect(errors.Is(err, ErrContention)).To(BeTrue(), "got %v", err)
		Expect(attempts).To(Equal(3))
	})

	It("asks the host exactly once per migration", func() {
		hash := ballots.CodeHash{0x0c}
		host := &countingHost{CodeHost: ballots.NewCodeRegistry(hash)}

		Expect(store.MigrateCode(ctx, host, hash)).To(Succeed())
		Expect(host.calls).To(Equal(1))

		recorded, found, err := store.CodeHash(ctx)
		Expect(err).To(Succeed())
		Expect(found).To(BeTrue())
		Expect(recorded).To(Equal(hash))
	})
})

var _ = Describe("Store migration when the server goes away", func() {
	It("reports a fatal unrecorded switch after the host accepted", func() {
		server, err := miniredis.Run()
		Expect(err).To(Succeed())
		client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
		store := New(client, "tenant")
		defer store.Close()
		server.Close()

		hash := ballots.CodeHash{0x0d}
		host := &countingHost{CodeHost: ballots.NewCodeRegistry(hash)}
		err = store.MigrateCode(context.Background(), host, hash)

		Expect(ballots.IsFatal(err)).To(BeTrue(), "got %v", err)
		Expect(errors.Is(err, ballots.ErrUnrecordedSwitch)).To(BeTrue())
		Expect(host.calls).To(Equal(1))
	})
})
