package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostingSchedule holds the two daily slots of an account. Older schedules
// are kept with IsActive=false for history.
type PostingSchedule struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AccountID       primitive.ObjectID `bson:"account_id" json:"account_id"`
	TimeSlot1       string             `bson:"time_slot_1" json:"time_slot_1"`
	TimeSlot2       string             `bson:"time_slot_2" json:"time_slot_2"`
	Timezone        string             `bson:"timezone" json:"timezone"`
	VarianceMinutes int                `bson:"variance_minutes" json:"variance_minutes"`
	IsActive        bool               `bson:"is_active" json:"is_active"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts "HH:MM" in 24-hour form.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before compares two times of day.
func (c ClockTime) Before(o ClockTime) bool {
	return c.minutes() < o.minutes()
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

// On returns the instant of c on the calendar day of day, in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Slots parses both slots.
func (s *PostingSchedule) Slots() (ClockTime, ClockTime, error) {
	first, err := ParseClockTime(s.TimeSlot1)
	if err != nil {
		return ClockTime{}, ClockTime{}, err
	}
	second, err := ParseClockTime(s.TimeSlot2)
	if err != nil {
		return ClockTime{}, ClockTime{}, err
	}
	return first, second, nil
}

// Location loads the schedule timezone.
func (s *PostingSchedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}
