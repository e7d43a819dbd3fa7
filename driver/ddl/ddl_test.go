package ddl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/ddl"
	"github.com/root-talis/henka/v2/schema"
)

func ptr(s string) *string {
	return &s
}

var renderTestsTable = []struct { // nolint:gochecknoglobals
	name     string
	dialect  ddl.Dialect
	op       schema.Operation
	expected string
}{
	/* s0 */ {
		name:    "test s0: postgres create table",
		dialect: ddl.Postgres,
		op: schema.CreateTable{
			Name: "posts",
			Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "author_id", Type: "bigint", Nullable: true},
				{Name: "state", Type: "text", Default: ptr("'draft'")},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{{
				Name: "posts_author_fk", Columns: []string{"author_id"},
				RefTable: "users", RefColumns: []string{"id"}, OnDelete: schema.SetNull,
			}},
		},
		expected: `CREATE TABLE "posts" ("id" bigint NOT NULL, "author_id" bigint, ` +
			`"state" text NOT NULL DEFAULT 'draft', PRIMARY KEY ("id"), ` +
			`CONSTRAINT "posts_author_fk" FOREIGN KEY ("author_id") REFERENCES "users" ("id") ON DELETE SET NULL)`,
	},
	/* s1 */ {
		name:     "test s1: mysql add column",
		dialect:  ddl.MySQL,
		op:       schema.AddColumn{Table: "users", Column: schema.Column{Name: "email", Type: "varchar(255)"}},
		expected: "ALTER TABLE `users` ADD COLUMN `email` varchar(255) NOT NULL",
	},
	/* s2 */ {
		name:     "test s2: mysql drop index",
		dialect:  ddl.MySQL,
		op:       schema.DropIndex{Name: "users_email_idx", Table: "users"},
		expected: "DROP INDEX `users_email_idx` ON `users`",
	},
	/* s3 */ {
		name:     "test s3: sqlite drop index",
		dialect:  ddl.SQLite,
		op:       schema.DropIndex{Name: "users_email_idx", Table: "users"},
		expected: `DROP INDEX "users_email_idx"`,
	},
	/* s4 */ {
		name:    "test s4: postgres partial unique index",
		dialect: ddl.Postgres,
		op: schema.CreateIndex{
			Name: "users_email_idx", Table: "users", Columns: []string{"email"}, Unique: true, Filter: "deleted_at IS NULL",
		},
		expected: `CREATE UNIQUE INDEX "users_email_idx" ON "users" ("email") WHERE deleted_at IS NULL`,
	},
	/* s5 */ {
		name:     "test s5: mysql drop foreign key",
		dialect:  ddl.MySQL,
		op:       schema.DropForeignKey{Table: "posts", Name: "posts_author_fk"},
		expected: "ALTER TABLE `posts` DROP FOREIGN KEY `posts_author_fk`",
	},
	/* s6 */ {
		name:     "test s6: postgres drop foreign key",
		dialect:  ddl.Postgres,
		op:       schema.DropForeignKey{Table: "posts", Name: "posts_author_fk"},
		expected: `ALTER TABLE "posts" DROP CONSTRAINT "posts_author_fk"`,
	},
	/* s7 */ {
		name:     "test s7: identifiers are escaped",
		dialect:  ddl.Postgres,
		op:       schema.DropTable{Name: `we"ird`},
		expected: `DROP TABLE "we""ird"`,
	},
	/* s8 */ {
		name:     "test s8: mysql identifiers are escaped",
		dialect:  ddl.MySQL,
		op:       schema.DropColumn{Table: "t", Name: "a`b"},
		expected: "ALTER TABLE `t` DROP COLUMN `a``b`",
	},
}

func TestRender(t *testing.T) {
	t.Parallel()

	for _, test := range renderTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			stmt, err := test.dialect.Render(test.op)
			require.NoError(t, err)
			assert.Equal(t, test.expected, stmt)
		})
	}
}

func TestRenderUnsupported(t *testing.T) {
	t.Parallel()

	fk := schema.ForeignKey{Name: "fk", Columns: []string{"a"}, RefTable: "r", RefColumns: []string{"id"}}

	_, err := ddl.SQLite.Render(schema.AddForeignKey{Table: "t", ForeignKey: fk})
	assert.ErrorIs(t, err, driver.ErrUnsupportedOperation)

	_, err = ddl.SQLite.Render(schema.DropForeignKey{Table: "t", Name: "fk"})
	assert.ErrorIs(t, err, driver.ErrUnsupportedOperation)

	_, err = ddl.MySQL.Render(schema.CreateIndex{Name: "i", Table: "t", Columns: []string{"a"}, Filter: "a > 0"})
	assert.ErrorIs(t, err, driver.ErrUnsupportedOperation)

	_, err = ddl.Postgres.Render(nil)
	assert.ErrorIs(t, err, schema.ErrInvalidOperation)
}
