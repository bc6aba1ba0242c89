package ai

import (
	"fmt"
	"strings"

	"github.com/nestmate/nestmate/store"
)

// ProfileText renders a user into the deterministic English description that
// gets embedded as the user's profile vector (who the user is).
func ProfileText(user *store.UserProfile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Age: %d, Gender: %s. ", user.Age(), user.Gender)

	if user.ZipCode != "" {
		fmt.Fprintf(&b, "Location: %s. ", user.ZipCode)
	}

	if user.Budget != nil {
		fmt.Fprintf(&b, "Budget: $%d-$%d. ", user.Budget.Min, user.Budget.Max)
	}

	if ls := user.Lifestyle; ls != nil {
		b.WriteString("Lifestyle: ")
		if ls.Smoking != nil {
			if *ls.Smoking {
				b.WriteString("Smoker, ")
			} else {
				b.WriteString("Non-smoker, ")
			}
		}
		if ls.PetFriendly != nil {
			if *ls.PetFriendly {
				b.WriteString("Pet-friendly, ")
			} else {
				b.WriteString("No pets, ")
			}
		}
		if ls.NightOwl != nil {
			if *ls.NightOwl {
				b.WriteString("Night owl, ")
			} else {
				b.WriteString("Early bird, ")
			}
		}
		if ls.GuestFrequency != "" {
			fmt.Fprintf(&b, "Has guests %s. ", ls.GuestFrequency)
		}
	}

	if user.MoreAboutMe != "" {
		fmt.Fprintf(&b, "About me: %s", user.MoreAboutMe)
	}

	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(b.String()), ","))
}

// PreferenceText renders what a user wants in a roommate into the description
// that gets embedded as the user's preference vector.
func PreferenceText(user *store.UserProfile) string {
	var b strings.Builder
	b.WriteString("Looking for a roommate. ")

	pref := user.Preferences
	if pref == nil {
		return strings.TrimSpace(b.String())
	}

	if pref.Gender != "" {
		fmt.Fprintf(&b, "Preferred gender: %s. ", pref.Gender)
	}
	if pref.MinAge != nil && pref.MaxAge != nil {
		fmt.Fprintf(&b, "Preferred age: %d-%d. ", *pref.MinAge, *pref.MaxAge)
	} else if pref.MinAge != nil {
		fmt.Fprintf(&b, "Preferred age: %d or older. ", *pref.MinAge)
	} else if pref.MaxAge != nil {
		fmt.Fprintf(&b, "Preferred age: %d or younger. ", *pref.MaxAge)
	}

	if pref.Smoking != nil {
		if *pref.Smoking {
			b.WriteString("Smoking is fine. ")
		} else {
			b.WriteString("Prefers a non-smoker. ")
		}
	}
	if pref.PetFriendly != nil {
		if *pref.PetFriendly {
			b.WriteString("Pets are welcome. ")
		} else {
			b.WriteString("Prefers no pets. ")
		}
	}
	if pref.NightOwl != nil {
		if *pref.NightOwl {
			b.WriteString("Prefers a night owl. ")
		} else {
			b.WriteString("Prefers an early bird. ")
		}
	}
	if pref.GuestFrequency != "" {
		fmt.Fprintf(&b, "Guest preference: %s. ", pref.GuestFrequency)
	}
	if pref.MoreAboutRoommate != "" {
		fmt.Fprintf(&b, "About the desired roommate: %s", pref.MoreAboutRoommate)
	}

	return strings.TrimSpace(b.String())
}
