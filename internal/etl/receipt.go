//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package etl

import (
	"fmt"
	"strconv"
	"strings"
)

// ReceiptNumber normalizes a source receipt such as "BOL-04321" to the
// number formed by its ASCII digits (4321). A receipt without digits, or
// whose digits do not fit in an int64, yields 0.
func ReceiptNumber(receipt string) int64 {
	var b strings.Builder
	for _, r := range receipt {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// LocationCode is the dim_ubicacion code of a source location id.
func LocationCode(sourceID int64) string {
	return fmt.Sprintf("UB%03d", sourceID)
}
