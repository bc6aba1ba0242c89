package v1

import (
	"time"

	"github.com/nestmate/nestmate/store"
)

// UserResponse is the wire shape of a user profile.
type UserResponse struct {
	ID          string             `json:"id"`
	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	Email       string             `json:"email,omitempty"`
	DateOfBirth string             `json:"dateOfBirth,omitempty"`
	Age         int                `json:"age,omitempty"`
	Gender      string             `json:"gender,omitempty"`
	ZipCode     string             `json:"zipCode,omitempty"`
	MoreAboutMe string             `json:"moreAboutMe,omitempty"`
	Complete    bool               `json:"complete"`
	Budget      *BudgetPayload     `json:"budget,omitempty"`
	Lifestyle   *LifestylePayload  `json:"lifestyle,omitempty"`
	Preferences *PreferencePayload `json:"preferences,omitempty"`
	CreatedTs   int64              `json:"createdTs"`
	UpdatedTs   int64              `json:"updatedTs"`
}

type BudgetPayload struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type LifestylePayload struct {
	PetFriendly    *bool  `json:"petFriendly,omitempty"`
	Smoking        *bool  `json:"smoking,omitempty"`
	NightOwl       *bool  `json:"nightOwl,omitempty"`
	GuestFrequency string `json:"guestFrequency,omitempty"`
}

type PreferencePayload struct {
	PetFriendly       *bool  `json:"petFriendly,omitempty"`
	Smoking           *bool  `json:"smoking,omitempty"`
	NightOwl          *bool  `json:"nightOwl,omitempty"`
	GuestFrequency    string `json:"guestFrequency,omitempty"`
	MinAge            *int   `json:"minAge,omitempty"`
	MaxAge            *int   `json:"maxAge,omitempty"`
	Gender            string `json:"gender,omitempty"`
	MoreAboutRoommate string `json:"moreAboutRoommate,omitempty"`
}

const dateLayout = "2006-01-02"

func convertUser(u *store.UserProfile) *UserResponse {
	if u == nil {
		return nil
	}
	out := &UserResponse{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Age:         u.Age(),
		Gender:      u.Gender,
		ZipCode:     u.ZipCode,
		MoreAboutMe: u.MoreAboutMe,
		Complete:    u.IsComplete(),
		CreatedTs:   u.CreatedTs,
		UpdatedTs:   u.UpdatedTs,
	}
	if u.DateOfBirth != nil {
		out.DateOfBirth = u.DateOfBirth.Format(dateLayout)
	}
	if u.Budget != nil {
		out.Budget = &BudgetPayload{Min: u.Budget.Min, Max: u.Budget.Max}
	}
	if u.Lifestyle != nil {
		out.Lifestyle = &LifestylePayload{
			PetFriendly:    u.Lifestyle.PetFriendly,
			Smoking:        u.Lifestyle.Smoking,
			NightOwl:       u.Lifestyle.NightOwl,
			GuestFrequency: u.Lifestyle.GuestFrequency,
		}
	}
	if u.Preferences != nil {
		out.Preferences = convertPreference(u.Preferences)
	}
	return out
}

func convertPreference(p *store.Preference) *PreferencePayload {
	return &PreferencePayload{
		PetFriendly:       p.PetFriendly,
		Smoking:           p.Smoking,
		NightOwl:          p.NightOwl,
		GuestFrequency:    p.GuestFrequency,
		MinAge:            p.MinAge,
		MaxAge:            p.MaxAge,
		Gender:            p.Gender,
		MoreAboutRoommate: p.MoreAboutRoommate,
	}
}

func (p *LifestylePayload) toStore() *store.Lifestyle {
	if p == nil {
		return nil
	}
	return &store.Lifestyle{
		PetFriendly:    p.PetFriendly,
		Smoking:        p.Smoking,
		NightOwl:       p.NightOwl,
		GuestFrequency: p.GuestFrequency,
	}
}

func (p *PreferencePayload) toStore() *store.Preference {
	if p == nil {
		return nil
	}
	return &store.Preference{
		PetFriendly:       p.PetFriendly,
		Smoking:           p.Smoking,
		NightOwl:          p.NightOwl,
		GuestFrequency:    p.GuestFrequency,
		MinAge:            p.MinAge,
		MaxAge:            p.MaxAge,
		Gender:            p.Gender,
		MoreAboutRoommate: p.MoreAboutRoommate,
	}
}

func (p *BudgetPayload) toStore() *store.Budget {
	if p == nil {
		return nil
	}
	return &store.Budget{Min: p.Min, Max: p.Max}
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
