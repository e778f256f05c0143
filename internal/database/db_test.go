package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	dsn := Options{User: "edjs", Pass: "secret", Host: "db", Port: "3306", Name: "theatre"}.DSN()
	assert.True(t, strings.HasPrefix(dsn, "edjs:secret@tcp(db:3306)/theatre?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestTablesAreOrderedByDependency(t *testing.T) {
	seen := map[string]bool{}
	for _, tbl := range tables {
		for _, ref := range strings.Split(tbl.ddl, "REFERENCES ")[1:] {
			target := ref[:strings.Index(ref, "(")]
			assert.True(t, seen[target], "%s references %s before it is created", tbl.name, target)
		}
		seen[tbl.name] = true
	}
}
