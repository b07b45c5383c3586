// Package safety screens generated SQL before it reaches the warehouse.
package safety

import (
	"fmt"
	"strings"
)

// denied lists statement keywords that must never reach the warehouse. The
// check is an ordered case-insensitive substring scan over the whole
// statement, so a keyword inside a string literal or identifier also trips
// the gate. That trade favors rejecting a harmless query over ever running a
// destructive one against read-only analytics data.
var denied = []string{"DROP", "DELETE", "TRUNCATE", "ALTER", "UPDATE", "INSERT"}

// Verdict is the outcome of screening one SQL statement.
type Verdict struct {
	Allowed bool
	Keyword string
	Reason  string
}

// Check scans sqlText against the deny list and returns the verdict for the
// first keyword found. Any statement free of the keywords passes, including
// an empty one; the generator and the executor reject empty SQL themselves.
func Check(sqlText string) Verdict {
	upper := strings.ToUpper(sqlText)
	for _, kw := range denied {
		if strings.Contains(upper, kw) {
			return Verdict{
				Keyword: kw,
				Reason:  fmt.Sprintf("statement contains forbidden keyword %s", kw),
			}
		}
	}
	return Verdict{Allowed: true}
}
