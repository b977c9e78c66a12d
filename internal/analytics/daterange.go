package analytics

import (
	"time"

	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
)

const dateLayout = "2006-01-02"

// DateRange is a half-open UTC window [From, To) covering whole calendar days
type DateRange struct {
	From time.Time
	To   time.Time

	fromDate string
	toDate   string
}

// ParseDateRange builds the window for calendar dates from..to, both included.
// To is the start of the day after the to date. A to date before from yields
// an empty window.
func ParseDateRange(from, to string) (DateRange, error) {
	start, err := time.ParseInLocation(dateLayout, from, time.UTC)
	if err != nil {
		return DateRange{}, apierrors.InvalidRange(from, "expected YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, to, time.UTC)
	if err != nil {
		return DateRange{}, apierrors.InvalidRange(to, "expected YYYY-MM-DD")
	}
	return DateRange{
		From:     start,
		To:       end.AddDate(0, 0, 1),
		fromDate: from,
		toDate:   to,
	}, nil
}

// Contains reports whether t falls inside the window
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Period echoes the requested calendar dates
func (r DateRange) Period() Period {
	return Period{From: r.fromDate, To: r.toDate}
}
