package store

import (
	"strings"

	"github.com/arkilian/vectorlayer/internal/geometry"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
)

func registerFunctions(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("st_intersects", stIntersects, true); err != nil {
		return err
	}
	return conn.RegisterFunc("icontains", iContains, true)
}

// stIntersects(a, b) compares two stored geometry blobs. NULL yields 0.
func stIntersects(a, b interface{}) (int64, error) {
	ab, ok1 := a.([]byte)
	bb, ok2 := b.([]byte)
	if !ok1 || !ok2 || len(ab) == 0 || len(bb) == 0 {
		return 0, nil
	}
	ga, err := geometry.Decode(ab)
	if err != nil {
		return 0, err
	}
	gb, err := geometry.Decode(bb)
	if err != nil {
		return 0, err
	}
	if geometry.Intersects(ga, gb) {
		return 1, nil
	}
	return 0, nil
}

// iContains(haystack, needle) is a literal substring test under Unicode
// case folding. Non-text arguments yield 0.
func iContains(haystack, needle interface{}) int64 {
	h, ok1 := haystack.(string)
	n, ok2 := needle.(string)
	if !ok1 || !ok2 {
		return 0
	}
	if ContainsFold(h, n) {
		return 1
	}
	return 0
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(haystack), fold.String(needle))
}
