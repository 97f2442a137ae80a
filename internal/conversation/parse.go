package conversation

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"02/01/2006 15:04",
	"2/1/2006 15:04",
	"2006-01-02 15:04",
}

// date-only input defaults to this hour
const defaultHour = 10

var errDateFormat = errors.New("unrecognised date format")

// parseDateTime reads customer date input in loc.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{"02/01/2006", "2/1/2006", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Add(defaultHour * time.Hour), nil
		}
	}
	return time.Time{}, errDateFormat
}

// normalize lower-cases and collapses whitespace for command matching.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// idAfter parses "<prefix><id>" selection ids.  Bare numbers are accepted
// too, since customers often type the option number.
func idAfter(input, prefix string) (uint64, bool) {
	input = strings.TrimPrefix(input, prefix)
	id, err := strconv.ParseUint(input, 10, 64)
	return id, err == nil && id > 0
}

// money renders whole currency units with thousands separators.
func money(amount int64, currency string) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String()
	if neg {
		out = "-" + out
	}
	if currency != "" {
		out += " " + strings.ToUpper(currency)
	}
	return out
}
