package model

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// ============================================================================
// RESULT COMPARISON
// ============================================================================

// NormalizeRows prepares rows for comparison: float fields are rounded to
// two decimal places, everything else is kept as-is. LLM-produced SQL often
// returns full floating-point precision noise; two decimals is the agreed
// tolerance and must not be tightened, existing fixtures depend on it.
func NormalizeRows(rows []Row) []Row {
	normalized := make([]Row, 0, len(rows))
	for _, row := range rows {
		norm := make(Row, len(row))
		for k, v := range row {
			switch f := v.(type) {
			case float64:
				norm[k] = math.Round(f*100) / 100
			case float32:
				norm[k] = math.Round(float64(f)*100) / 100
			default:
				norm[k] = v
			}
		}
		normalized = append(normalized, norm)
	}
	return normalized
}

// rowSortKey builds an ordering key by concatenating the string form of
// every field value in canonical (sorted field name) order. String keys
// give a total order, so sorting never fails even for heterogeneous rows.
func rowSortKey(row Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(fmt.Sprint(row[k]))
	}
	return b.String()
}

// CompareResults checks two result sets for semantic equality: row counts
// must match exactly, but row order, field order, and sub-cent float noise
// do not matter.
func CompareResults(expected, actual []Row) bool {
	if len(expected) != len(actual) {
		return false
	}

	normExpected := NormalizeRows(expected)
	normActual := NormalizeRows(actual)

	sort.SliceStable(normExpected, func(i, j int) bool {
		return rowSortKey(normExpected[i]) < rowSortKey(normExpected[j])
	})
	sort.SliceStable(normActual, func(i, j int) bool {
		return rowSortKey(normActual[i]) < rowSortKey(normActual[j])
	})

	for i := range normExpected {
		if !reflect.DeepEqual(normExpected[i], normActual[i]) {
			return false
		}
	}
	return true
}
