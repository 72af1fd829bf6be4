package util

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Day and Week are the calendar units accepted by ParseDuration.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var durationFragment = regexp.MustCompile(`(?i)(\d+)\s?(weeks?|w|days?|d|hours?|h|minutes?|min|m|seconds?|sec|s)`)

// ParseDuration sums "<int> <unit>" fragments such as "1w 2d", "10m" or
// "3 hours 20 sec". Units are case-insensitive; text without a recognised
// fragment yields zero.
func ParseDuration(s string) time.Duration {
	var total time.Duration
	for _, m := range durationFragment.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		total += time.Duration(n) * unitOf(m[2])
	}
	slog.Debug("ParseDuration: converted string to duration", "input", s, "duration", total)
	return total
}

func unitOf(u string) time.Duration {
	switch strings.ToLower(u)[0] {
	case 'w':
		return Week
	case 'd':
		return Day
	case 'h':
		return time.Hour
	case 'm':
		return time.Minute
	default:
		return time.Second
	}
}

// FormatDuration renders d as "[N day(s), ]H:MM:SS", truncated to the smallest
// unit "s", "m" or "h".
func FormatDuration(d time.Duration, smallestUnit string) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / Day
	d -= days * Day
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	var clock string
	switch smallestUnit {
	case "h":
		clock = fmt.Sprintf("%d", h)
	case "m":
		clock = fmt.Sprintf("%d:%02d", h, m)
	default:
		clock = fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	switch days {
	case 0:
		return sign + clock
	case 1:
		return sign + "1 day, " + clock
	default:
		return fmt.Sprintf("%s%d days, %s", sign, days, clock)
	}
}

// Timestamp renders a Discord timestamp tag. mode is one of the Discord styles
// (t, T, d, D, f, F, R) or empty for the default.
func Timestamp(t time.Time, mode string) string {
	if mode == "" {
		return fmt.Sprintf("<t:%d>", t.Unix())
	}
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), mode)
}
