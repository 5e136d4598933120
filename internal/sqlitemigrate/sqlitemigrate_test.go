package sqlitemigrate

import (
	"context"
	"database/sql"
	"testing/fstest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	_ "modernc.org/sqlite"
)

var _ = Describe("ExtractUpMigration", func() {
	It("returns the Up section only", func() {
		content := "-- +migrate Up\nCREATE TABLE a (x INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
		Expect(ExtractUpMigration(content)).To(Equal("\nCREATE TABLE a (x INTEGER);\n"))
	})

	It("returns everything when there are no markers", func() {
		Expect(ExtractUpMigration("SELECT 1;")).To(Equal("SELECT 1;"))
	})
})

var _ = Describe("ApplyMigrations", func() {
	var sqlDB *sql.DB

	BeforeEach(func() {
		var err error
		sqlDB, err = sql.Open("sqlite", ":memory:")
		Expect(err).To(Succeed())
		sqlDB.SetMaxOpenConns(1)
	})

	AfterEach(func() {
		Expect(sqlDB.Close()).To(Succeed())
	})

	It("applies each file once", func() {
		migrations := fstest.MapFS{
			"001_init.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE things (id INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE things;\n")},
			"002_seed.sql": {Data: []byte("INSERT INTO things (id) VALUES (1);")},
			"notes.txt":    {Data: []byte("ignored")},
		}
		ctx := context.Background()
		Expect(ApplyMigrations(ctx, sqlDB, migrations)).To(Succeed())
		Expect(ApplyMigrations(ctx, sqlDB, migrations)).To(Succeed())

		var count int
		Expect(sqlDB.QueryRow("SELECT COUNT(*) FROM things").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))

		Expect(sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(2))
	})

	It("rolls back a failing file and reports it", func() {
		migrations := fstest.MapFS{
			"001_bad.sql": {Data: []byte("CREATE TABLE ok (id INTEGER); THIS IS NOT SQL;")},
		}
		err := ApplyMigrations(context.Background(), sqlDB, migrations)
		Expect(err).To(MatchError(ContainSubstring("001_bad.sql")))

		var count int
		Expect(sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(0))
	})

	It("requires a database", func() {
		Expect(ApplyMigrations(context.Background(), nil, fstest.MapFS{})).NotTo(Succeed())
	})
})
