package sqldb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/root-talis/henka/v2/driver/sqldb"
)

func TestParseLogTime(t *testing.T) {
	t.Parallel()

	expected := time.Date(2024, 2, 29, 13, 45, 10, 0, time.UTC)

	assert.True(t, expected.Equal(sqldb.ParseLogTime("2024-02-29 13:45:10")))
	assert.True(t, expected.Equal(sqldb.ParseLogTime("2024-02-29T15:45:10+02:00")))
	assert.True(t, expected.Equal(sqldb.ParseLogTime("2024-02-29 13:45:10+00:00")))
	assert.True(t, sqldb.ParseLogTime("yesterday").IsZero())
}
