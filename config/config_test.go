package config

import (
	"os"
	"strings"

	ballots "github.com/jicksta/case-ballots"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	vars := []string{
		"BALLOTS_BACKEND", "BALLOTS_SQLITE_PATH", "BALLOTS_REDIS_ADDR", "BALLOTS_REDIS_PREFIX",
		"BALLOTS_ID_POLICY", "BALLOTS_HTTP_ADDR", "BALLOTS_CODE_HASHES",
	}
	saved := map[string]string{}

	BeforeEach(func() {
		for _, name := range vars {
			if value, ok := os.LookupEnv(name); ok {
				saved[name] = value
			}
			os.Unsetenv(name)
		}
	})

	AfterEach(func() {
		for _, name := range vars {
			os.Unsetenv(name)
			if value, ok := saved[name]; ok {
				os.Setenv(name, value)
			}
		}
	})

	It("falls back to defaults", func() {
		cfg, err := Load()
		Expect(err).To(Succeed())
		Expect(cfg.Backend).To(Equal(BackendSQLite))
		Expect(cfg.SQLitePath).To(Equal("ballots.db"))
		Expect(cfg.RedisAddr).To(Equal("localhost:6379"))
		Expect(cfg.RedisPrefix).To(Equal("ballots"))
		Expect(cfg.HTTPAddr).To(Equal(":8080"))

		policy, err := cfg.Policy()
		Expect(err).To(Succeed())
		Expect(policy).To(Equal(ballots.SequentialIDs))
	})

	It("reads overrides and trusted code hashes", func() {
		hash := strings.Repeat("0f", 32)
		os.Setenv("BALLOTS_BACKEND", "memory")
		os.Setenv("BALLOTS_ID_POLICY", "size")
		os.Setenv("BALLOTS_CODE_HASHES", hash+", ,0x"+hash)

		cfg, err := Load()
		Expect(err).To(Succeed())
		Expect(cfg.Backend).To(Equal(BackendMemory))

		policy, err := cfg.Policy()
		Expect(err).To(Succeed())
		Expect(policy).To(Equal(ballots.SizeDerivedIDs))

		hashes, err := cfg.TrustedCodeHashes()
		Expect(err).To(Succeed())
		Expect(hashes).To(HaveLen(2))
		Expect(hashes[0]).To(Equal(hashes[1]))
	})

	It("rejects an unknown backend", func() {
		os.Setenv("BALLOTS_BACKEND", "postgres")
		_, err := Load()
		Expect(err).To(MatchError(ContainSubstring("postgres")))
	})

	It("rejects an unknown id policy", func() {
		os.Setenv("BALLOTS_ID_POLICY", "random")
		_, err := Load()
		Expect(err).To(HaveOccurred())
	})

	It("rejects malformed code hashes", func() {
		os.Setenv("BALLOTS_CODE_HASHES", "nothex")
		_, err := Load()
		Expect(err).To(MatchError(ContainSubstring("BALLOTS_CODE_HASHES")))
	})
})
