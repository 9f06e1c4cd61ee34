// PhotoFilters describe user-provided filters to narrow the photo list.
package dto

import "time"

type PhotoFilters struct {
	Facing     string
	Object     string
	DateAfter  time.Time
	DateBefore time.Time
}
