// Package caption expands caption templates and appends rotating hashtags.
package caption

import (
	"math/rand"
	"strings"
	"time"
)

// DefaultHashtagCount is also the most tags a caption ever carries.
const DefaultHashtagCount = 20

// TimePeriod buckets a local hour: [5,12) morning, [12,17) afternoon,
// [17,21) evening, otherwise night.
func TimePeriod(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// Compose substitutes the template placeholders. now must already be in the
// account's timezone. Substituted values are not rescanned for placeholders.
func Compose(template, freeText, accountName string, now time.Time) string {
	r := strings.NewReplacer(
		"{account_name}", accountName,
		"{date}", now.Format("January 02, 2006"),
		"{time}", now.Format("03:04 PM"),
		"{day_of_week}", now.Weekday().String(),
		"{time_period}", TimePeriod(now.Hour()),
		"{custom_text}", freeText,
	)
	return r.Replace(template)
}

// Variables are the placeholders Compose understands.
var Variables = []string{"account_name", "date", "time", "day_of_week", "time_period", "custom_text"}

func KnownVariable(name string) bool {
	for _, v := range Variables {
		if v == name {
			return true
		}
	}
	return false
}

// NormalizeTag strips whitespace and a leading '#'.
func NormalizeTag(tag string) string {
	return strings.TrimLeft(strings.TrimSpace(tag), "#")
}

// SampleHashtags picks up to n distinct tags without replacement. With n or
// fewer distinct tags available, all of them are returned in input order.
func SampleHashtags(tags []string, n int, rng *rand.Rand) []string {
	if n <= 0 {
		return nil
	}
	n = min(n, DefaultHashtagCount)

	seen := make(map[string]bool, len(tags))
	unique := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = NormalizeTag(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, tag)
	}

	if len(unique) <= n {
		return unique
	}

	picked := make([]string, n)
	for i, idx := range rng.Perm(len(unique))[:n] {
		picked[i] = unique[idx]
	}
	return picked
}

// AppendHashtags adds the tags as one space-joined line after a blank line.
func AppendHashtags(caption string, tags []string) string {
	if len(tags) == 0 {
		return caption
	}
	line := make([]string, len(tags))
	for i, tag := range tags {
		line[i] = "#" + tag
	}
	return caption + "\n\n" + strings.Join(line, " ")
}
