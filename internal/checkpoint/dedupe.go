package checkpoint

import "fmt"

// dedupeKey is the deepest-layer identity recorded for a row. Two missing
// rows are the same book iff every layer computed for both is equal, so the
// key widens with whatever was recorded.
func dedupeKey(row Row) string {
	switch {
	case row.Full != "":
		return fmt.Sprintf("f:%s", row.Full)
	case row.Partial != "":
		return fmt.Sprintf("s:%d|p:%s", row.Size, row.Partial)
	default:
		return fmt.Sprintf("s:%d", row.Size)
	}
}

// UniqueMissing filters rows to the missing ones, keeping the first row of
// each identical-content group, and reports how many datalake-internal
// duplicates were dropped. Input order is preserved.
func UniqueMissing(rows []Row) ([]Row, int) {
	seen := make(map[string]bool)
	var unique []Row
	dupes := 0

	for _, row := range rows {
		if row.Status != StatusMissing {
			continue
		}
		key := dedupeKey(row)
		if seen[key] {
			dupes++
			continue
		}
		seen[key] = true
		unique = append(unique, row)
	}
	return unique, dupes
}
