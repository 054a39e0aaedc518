package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable identifier for accounts, tasks and
// comments. Within one process, later calls sort after earlier ones.
func New() string {
	return ulid.Make().String()
}

// Valid reports whether s parses as an identifier produced by New.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
