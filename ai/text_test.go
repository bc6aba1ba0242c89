package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/nestmate/nestmate/store"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func testUser() *store.UserProfile {
	dob := time.Date(1996, 5, 10, 0, 0, 0, 0, time.UTC)
	return &store.UserProfile{
		ID:          "u1",
		FirstName:   "Ada",
		LastName:    "Lee",
		Gender:      "female",
		ZipCode:     "02139",
		DateOfBirth: &dob,
		Budget:      &store.Budget{Min: 800, Max: 1400},
		Lifestyle: &store.Lifestyle{
			Smoking:        boolPtr(false),
			NightOwl:       boolPtr(true),
			GuestFrequency: "rarely",
		},
		MoreAboutMe: "Grad student, mostly in the lab.",
	}
}

func TestProfileText(t *testing.T) {
	text := ProfileText(testUser())

	for _, want := range []string{
		"Gender: female",
		"Location: 02139",
		"Budget: $800-$1400",
		"Non-smoker",
		"Night owl",
		"Has guests rarely",
		"About me: Grad student",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("ProfileText missing %q in %q", want, text)
		}
	}
}

func TestProfileTextDeterministic(t *testing.T) {
	user := testUser()
	if ProfileText(user) != ProfileText(user) {
		t.Error("ProfileText must be deterministic")
	}
}

func TestPreferenceText(t *testing.T) {
	user := testUser()
	user.Preferences = &store.Preference{
		Gender:            "female",
		MinAge:            intPtr(25),
		MaxAge:            intPtr(35),
		Smoking:           boolPtr(false),
		NightOwl:          boolPtr(false),
		GuestFrequency:    "rarely",
		MoreAboutRoommate: "Someone quiet and tidy.",
	}

	text := PreferenceText(user)
	for _, want := range []string{
		"Preferred gender: female",
		"Preferred age: 25-35",
		"Prefers a non-smoker",
		"Prefers an early bird",
		"Guest preference: rarely",
		"Someone quiet and tidy",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("PreferenceText missing %q in %q", want, text)
		}
	}
}

func TestPreferenceTextNoPreferences(t *testing.T) {
	user := testUser()
	user.Preferences = nil

	text := PreferenceText(user)
	if text != "Looking for a roommate." {
		t.Errorf("PreferenceText without preferences = %q", text)
	}
}

func TestPreferenceTextOpenAgeBounds(t *testing.T) {
	user := testUser()
	user.Preferences = &store.Preference{MinAge: intPtr(30)}

	if text := PreferenceText(user); !strings.Contains(text, "30 or older") {
		t.Errorf("expected open-ended min age in %q", text)
	}

	user.Preferences = &store.Preference{MaxAge: intPtr(40)}
	if text := PreferenceText(user); !strings.Contains(text, "40 or younger") {
		t.Errorf("expected open-ended max age in %q", text)
	}
}
