// Package timezone parses times of day, resolves free-text timezone hints and
// projects times into the operator's calendar zone.
package timezone

// Embedded zone database so conversions work on hosts without /usr/share/zoneinfo.
import _ "time/tzdata"
