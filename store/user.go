package store

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrUserNotFound is returned when a user record cannot be resolved.
var ErrUserNotFound = errors.New("user not found")

// Budget represents a user's monthly rent budget range.
type Budget struct {
	Min int
	Max int
}

// Lifestyle represents facts about how a user actually lives.
// Nil booleans mean the user has not answered that question.
type Lifestyle struct {
	PetFriendly    *bool
	Smoking        *bool
	NightOwl       *bool
	GuestFrequency string
}

// Preference represents what a user wants in a roommate.
// Nil fields mean "no preference".
type Preference struct {
	PetFriendly       *bool
	Smoking           *bool
	NightOwl          *bool
	GuestFrequency    string
	MinAge            *int
	MaxAge            *int
	Gender            string
	MoreAboutRoommate string
}

// UserProfile represents a roommate-seeking user.
type UserProfile struct {
	ID          string
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth *time.Time
	Gender      string
	ZipCode     string
	MoreAboutMe string
	AvatarPath  string
	Budget      *Budget
	Lifestyle   *Lifestyle
	Preferences *Preference
	CreatedTs   int64
	UpdatedTs   int64
}

// Age derives the user's age in whole years from their date of birth.
// Returns 0 when the date of birth is unset.
func (u *UserProfile) Age() int {
	return AgeAt(u.DateOfBirth, time.Now())
}

// AgeAt computes age in whole years at the given reference time.
func AgeAt(dob *time.Time, now time.Time) int {
	if dob == nil {
		return 0
	}
	years := now.Year() - dob.Year()
	anniversary := dob.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// CityCode returns the coarse locality bucket for the user's zip code.
// US zip codes: the first 3 digits identify the sectional center facility,
// roughly a city/metro area. Empty when the zip code is missing or too short.
func (u *UserProfile) CityCode() string {
	return CityCodeOf(u.ZipCode)
}

// CityCodeOf extracts the locality tag (first 3 digits) from a zip code.
func CityCodeOf(zipCode string) string {
	if len(zipCode) < 3 {
		return ""
	}
	return zipCode[:3]
}

// IsComplete reports whether the profile carries every field the matching
// engine requires: name, gender, zip code and date of birth.
func (u *UserProfile) IsComplete() bool {
	if u == nil {
		return false
	}
	return strings.TrimSpace(u.FirstName) != "" &&
		strings.TrimSpace(u.LastName) != "" &&
		strings.TrimSpace(u.Gender) != "" &&
		strings.TrimSpace(u.ZipCode) != "" &&
		u.DateOfBirth != nil
}

// FindUser specifies the conditions for finding users.
type FindUser struct {
	ID       *string
	IDs      []string
	Email    *string
	CityCode *string
	Limit    *int
}

// UpdateUser specifies the data for updating a user. Nil fields are untouched.
type UpdateUser struct {
	ID          string
	FirstName   *string
	LastName    *string
	Email       *string
	DateOfBirth *time.Time
	Gender      *string
	ZipCode     *string
	MoreAboutMe *string
	AvatarPath  *string
	Budget      *Budget
	Lifestyle   *Lifestyle
	Preferences *Preference
}
