package assignment

import "time"

// Window is the allocation period a decision belongs to. Weeks start on Monday.
type Window struct {
	Day       time.Time
	WeekStart time.Time
}

func WindowFor(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return Window{
		Day:       day,
		WeekStart: day.AddDate(0, 0, -offset),
	}
}

// LockKey names the advisory lock serializing allocations within the day.
func (w Window) LockKey() string {
	return "leads.allocation:" + w.Day.Format("2006-01-02")
}
