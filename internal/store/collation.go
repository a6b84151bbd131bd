package store

import (
	"database/sql"
	"strconv"
	"strings"
	"unicode"

	"modernc.org/sqlite"
)

// naturalCollationName is registered as a SQLite collation and used by
// item_path/item_name indexes and ORDER BY clauses so listings sort the
// way a person would expect ("file2.txt" before "file10.txt") rather than
// byte-for-byte, and case-insensitively.
const naturalCollationName = "NATURALPATH"

func registerNaturalCollation(db *sql.DB) error {
	sqlite.RegisterCollationFunction(naturalCollationName, naturalCompare)

	// modernc.org/sqlite applies collations registered before a connection
	// is opened to every connection pulled from the pool; issuing a no-op
	// query here forces the pool to materialize its first connection under
	// that registration rather than lazily on first real use.
	_, err := db.Exec("SELECT 1")
	return err
}

// naturalCompare implements case-insensitive, path-segment-aware
// ordering: paths are split on '/', each segment is compared
// case-insensitively, and runs of digits within a segment are compared
// numerically rather than lexically.
func naturalCompare(a, b string) int {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")

	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return len(as) - len(bs)
}

func compareSegment(a, b string) int {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		ca, cb := ar[i], br[j]

		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			ni, na := scanNumber(ar, i)
			nj, nb := scanNumber(br, j)
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			i, j = ni, nj
			continue
		}

		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	return (len(ar) - i) - (len(br) - j)
}

// scanNumber reads the run of digits starting at i and returns the index
// past it and the parsed value (clamped on overflow — natural sort only
// needs relative ordering, not exact magnitude).
func scanNumber(r []rune, i int) (int, int64) {
	start := i
	for i < len(r) && unicode.IsDigit(r[i]) {
		i++
	}
	n, err := strconv.ParseInt(string(r[start:i]), 10, 64)
	if err != nil {
		return i, 1<<62 - 1
	}
	return i, n
}
