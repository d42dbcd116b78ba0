package history

import (
	"errors"
	"strconv"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sqliteBusyCode = 5
)

type dialect struct {
	driver           string
	schema           string
	tableExistsQuery string
	pragmas          []string
	numbered         bool
	retryable        func(error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		return dialect{
			driver:           DriverSQLite,
			schema:           sqliteSchema,
			tableExistsQuery: "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?",
			pragmas: []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA foreign_keys = ON",
				"PRAGMA busy_timeout = 5000",
			},
			retryable: isSQLiteBusy,
		}, nil
	case DriverPostgres:
		return dialect{
			driver:           DriverPostgres,
			schema:           postgresSchema,
			tableExistsQuery: "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
			numbered:         true,
			retryable:        func(error) bool { return false },
		}, nil
	default:
		return dialect{}, errors.New("unsupported history driver " + strconv.Quote(driver))
	}
}

// rebind rewrites '?' placeholders to $n for drivers that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
