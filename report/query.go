// Package report implements the log query and export pipeline. Everything
// here is a pure function of the query state and the in-memory log slice;
// the input is never mutated.
package report

import (
	"sort"
	"strings"
	"time"

	"plodtrack/models"
)

// SortKey selects the column logs are ordered by.
type SortKey string

const (
	SortByStartTime SortKey = "start_time"
	SortByActivity  SortKey = "activity"
	SortByUser      SortKey = "user"
	SortByDuration  SortKey = "duration"
)

// Query holds the filter, search and sort state of the log screen. Filters
// are optional and conjunctive. The date range applies to the start time
// only, with exclusive bounds on both sides.
type Query struct {
	From           *time.Time
	To             *time.Time
	ActivityTypeID string
	UserID         string
	Search         string
	Sort           SortKey
	Ascending      bool
}

// NewQuery returns the default query: no filters, sorted by start time
// ascending.
func NewQuery() *Query {
	return &Query{Sort: SortByStartTime, Ascending: true}
}

// ToggleSort selects a sort column. Re-selecting the active column flips the
// direction; a new column resets to ascending.
func (q *Query) ToggleSort(key SortKey) {
	if q.Sort == key {
		q.Ascending = !q.Ascending
		return
	}
	q.Sort = key
	q.Ascending = true
}

// Apply filters, searches and sorts the logs, returning a new slice.
func (q *Query) Apply(logs []models.LogEntry) []models.LogEntry {
	out := make([]models.LogEntry, 0, len(logs))
	for _, e := range logs {
		if q.matches(&e) {
			out = append(out, e)
		}
	}
	q.sortEntries(out)
	return out
}

func (q *Query) matches(e *models.LogEntry) bool {
	if q.From != nil && !e.StartTime.After(*q.From) {
		return false
	}
	if q.To != nil && !e.StartTime.Before(*q.To) {
		return false
	}
	if q.ActivityTypeID != "" && e.ActivityTypeID != q.ActivityTypeID {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	return q.searchMatches(e)
}

// searchMatches applies the case-insensitive substring search over activity
// name, user name, role display text and metric names/values.
func (q *Query) searchMatches(e *models.LogEntry) bool {
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	if strings.Contains(strings.ToLower(e.ActivityName), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(e.UserName), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Role.Display()), needle) {
		return true
	}
	for _, m := range e.Metrics {
		if strings.Contains(strings.ToLower(m.Name), needle) ||
			strings.Contains(strings.ToLower(m.Value), needle) {
			return true
		}
	}
	return false
}

func (q *Query) sortEntries(entries []models.LogEntry) {
	less := func(a, b *models.LogEntry) bool {
		switch q.Sort {
		case SortByActivity:
			return a.ActivityName < b.ActivityName
		case SortByUser:
			return a.UserName < b.UserName
		case SortByDuration:
			return a.DurationSeconds < b.DurationSeconds
		default:
			return a.StartTime.Before(b.StartTime)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if q.Ascending {
			return less(&entries[i], &entries[j])
		}
		return less(&entries[j], &entries[i])
	})
}
