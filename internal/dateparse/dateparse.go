// Package dateparse pulls a deadline out of a quick-add task title. It knows
// a handful of English and Swedish phrases: "today"/"idag",
// "tomorrow"/"imorgon", "next friday"/"nästa fredag" and a time of day such
// as "at 5pm" or "kl 17:30".
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timeRe     = regexp.MustCompile(`(?i)\b(?:at|kl|klockan)\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	tomorrowRe = regexp.MustCompile(`(?i)\b(?:tomorrow|imorgon)\b`)
	todayRe    = regexp.MustCompile(`(?i)\b(?:today|idag)\b`)
	nextDayRe  = regexp.MustCompile(`(?i)\b(?:next|nästa)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|måndag|tisdag|onsdag|torsdag|fredag|lördag|söndag)`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"söndag":    time.Sunday,
	"måndag":    time.Monday,
	"tisdag":    time.Tuesday,
	"onsdag":    time.Wednesday,
	"torsdag":   time.Thursday,
	"fredag":    time.Friday,
	"lördag":    time.Saturday,
}

type Result struct {
	Title    string
	Deadline time.Time
}

// Parse looks for a date and/or time phrase in input, relative to now. It
// reports false when nothing matched. Without an explicit time the deadline
// keeps now's time of day.
func Parse(input string, now time.Time) (Result, bool) {
	target := now
	matched := false
	text := input

	switch {
	case tomorrowRe.MatchString(input):
		target = target.AddDate(0, 0, 1)
		text = tomorrowRe.ReplaceAllString(text, "")
		matched = true
	case todayRe.MatchString(input):
		text = todayRe.ReplaceAllString(text, "")
		matched = true
	default:
		if m := nextDayRe.FindStringSubmatch(input); m != nil {
			want := weekdays[strings.ToLower(m[1])]
			days := int(want - now.Weekday())
			if days <= 0 {
				days += 7
			}
			target = target.AddDate(0, 0, days)
			text = nextDayRe.ReplaceAllString(text, "")
			matched = true
		}
	}

	if m := timeRe.FindStringSubmatch(input); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		switch strings.ToLower(m[3]) {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour < 24 && minute < 60 {
			target = time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, target.Location())
			text = timeRe.ReplaceAllString(text, "")
			matched = true
		}
	}

	if !matched {
		return Result{Title: input}, false
	}
	return Result{
		Title:    strings.TrimSpace(spaceRe.ReplaceAllString(text, " ")),
		Deadline: target,
	}, true
}
