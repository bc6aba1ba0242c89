// Package match implements the hybrid roommate matching engine: rule-based
// attribute scoring, embedding similarity, bidirectional hard filtering,
// candidate retrieval and the ranking pipeline.
package match

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/store"
)

// HardFilterPolicy selects which attribute checks act as the bidirectional
// hard gate. The revisions of this system disagreed on the right set, so the
// policy is explicit configuration rather than a hardcoded choice.
type HardFilterPolicy string

const (
	// PolicyGender gates on gender preference only.
	PolicyGender HardFilterPolicy = "gender"
	// PolicyGenderCity gates on gender preference and same-city location.
	PolicyGenderCity HardFilterPolicy = "gender+city"
	// PolicyGenderAgeLifestyle gates on gender, age range and lifestyle
	// dealbreakers (smoking, pets).
	PolicyGenderAgeLifestyle HardFilterPolicy = "gender+age+lifestyle"
)

// Weights are the attribute sub-score weights. They must sum to 1.0.
type Weights struct {
	Age       float64
	Gender    float64
	Lifestyle float64
	Budget    float64
	Location  float64
}

// DefaultWeights returns the production weighting. Location carries 0.20
// since proximity within the same city matters to roommates.
func DefaultWeights() Weights {
	return Weights{
		Age:       0.20,
		Gender:    0.25,
		Lifestyle: 0.25,
		Budget:    0.10,
		Location:  0.20,
	}
}

// Validate checks that the weights sum to 1.0 within float tolerance.
func (w Weights) Validate() error {
	sum := w.Age + w.Gender + w.Lifestyle + w.Budget + w.Location
	if math.Abs(sum-1.0) > 1e-9 {
		return errors.Errorf("attribute weights must sum to 1.0, got %f", sum)
	}
	return nil
}

// AttributeScorer computes rule-based compatibility between two users.
// It is a pure function of its inputs: no I/O, no hidden state.
type AttributeScorer struct {
	weights Weights
	policy  HardFilterPolicy
	now     func() time.Time
}

// NewAttributeScorer creates a scorer with the given hard-filter policy and
// weights.
func NewAttributeScorer(policy HardFilterPolicy, weights Weights) (*AttributeScorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	switch policy {
	case PolicyGender, PolicyGenderCity, PolicyGenderAgeLifestyle:
	default:
		return nil, errors.Errorf("unknown hard filter policy %q", policy)
	}
	return &AttributeScorer{
		weights: weights,
		policy:  policy,
		now:     time.Now,
	}, nil
}

// CompatibilityScore calculates how well candidate b matches requester a's
// preferences. Asymmetric: CompatibilityScore(a, b) is "does b match what a
// wants". Result is in [0,1].
func (s *AttributeScorer) CompatibilityScore(a, b *store.UserProfile) float64 {
	return s.weights.Age*s.ageMatch(a, b) +
		s.weights.Gender*s.genderMatch(a, b) +
		s.weights.Lifestyle*s.lifestyleMatch(a, b) +
		s.weights.Budget*s.budgetOverlap(a, b) +
		s.weights.Location*s.locationMatch(a, b)
}

// MutualScore is the average of the two directional compatibility scores.
func (s *AttributeScorer) MutualScore(a, b *store.UserProfile) float64 {
	return (s.CompatibilityScore(a, b) + s.CompatibilityScore(b, a)) / 2.0
}

// MeetsHardRequirements reports whether candidate b passes requester a's hard
// requirements under the configured policy. One-directional: the pipeline
// calls it both ways.
func (s *AttributeScorer) MeetsHardRequirements(a, b *store.UserProfile) bool {
	switch s.policy {
	case PolicyGender:
		return s.passesGenderRequirement(a, b)
	case PolicyGenderCity:
		return s.passesGenderRequirement(a, b) && passesCityRequirement(a, b)
	case PolicyGenderAgeLifestyle:
		return s.passesGenderRequirement(a, b) &&
			s.passesAgeRequirement(a, b) &&
			passesLifestyleRequirements(a, b)
	default:
		return false
	}
}

// ========== AGE ==========

func (s *AttributeScorer) passesAgeRequirement(a, b *store.UserProfile) bool {
	if a.Preferences == nil {
		return true
	}
	age := store.AgeAt(b.DateOfBirth, s.now())
	if a.Preferences.MinAge != nil && age < *a.Preferences.MinAge {
		return false
	}
	if a.Preferences.MaxAge != nil && age > *a.Preferences.MaxAge {
		return false
	}
	return true
}

// ageMatch scores candidate b's age against requester a's preferred range.
// Inside the range the score decays linearly from 1.0 at the midpoint to 0.7
// at the edges. Outside the range it decays with distance but floors at 0.1
// so ranking stays stable; out-of-range is never an automatic zero.
func (s *AttributeScorer) ageMatch(a, b *store.UserProfile) float64 {
	if a.Preferences == nil {
		return 1.0
	}
	minAge, maxAge := a.Preferences.MinAge, a.Preferences.MaxAge
	if minAge == nil || maxAge == nil {
		return 1.0
	}

	age := store.AgeAt(b.DateOfBirth, s.now())
	midpoint := (*minAge + *maxAge) / 2
	span := *maxAge - *minAge

	if age >= *minAge && age <= *maxAge {
		if span == 0 {
			return 1.0
		}
		distance := math.Abs(float64(age - midpoint))
		return math.Max(0.7, 1.0-distance/(float64(span)/2.0)*0.3)
	}

	var distance int
	if age < *minAge {
		distance = *minAge - age
	} else {
		distance = age - *maxAge
	}

	// Starts at 0.6 just outside the range, loses ~0.15 per 5 years.
	return math.Max(0.1, 0.6-float64(distance)*0.03)
}

// ========== GENDER ==========

func (s *AttributeScorer) passesGenderRequirement(a, b *store.UserProfile) bool {
	if a.Preferences == nil || a.Preferences.Gender == "" {
		return true
	}

	preferred := strings.ToLower(a.Preferences.Gender)
	if preferred == "no preference" || preferred == "any" {
		return true
	}
	if b.Gender == "" {
		return false
	}
	return strings.ToLower(b.Gender) == preferred
}

func (s *AttributeScorer) genderMatch(a, b *store.UserProfile) float64 {
	if s.passesGenderRequirement(a, b) {
		return 1.0
	}
	return 0.0
}

// ========== LIFESTYLE ==========

// passesLifestyleRequirements treats smoking and pets as dealbreakers: if a
// wants non-smoking and b smokes (or a wants no pets and b has pets), fail.
func passesLifestyleRequirements(a, b *store.UserProfile) bool {
	if a.Preferences == nil || b.Lifestyle == nil {
		return true
	}

	if pref := a.Preferences.Smoking; pref != nil && !*pref {
		if actual := b.Lifestyle.Smoking; actual != nil && *actual {
			return false
		}
	}
	if pref := a.Preferences.PetFriendly; pref != nil && !*pref {
		if actual := b.Lifestyle.PetFriendly; actual != nil && *actual {
			return false
		}
	}
	return true
}

// Partial credit for lifestyle mismatches: these are soft preferences, not
// dealbreakers. Night owl is slightly more forgiving since people can adapt
// schedules.
const (
	lifestyleMismatchScore = 0.3
	nightOwlMismatchScore  = 0.4
)

func (s *AttributeScorer) lifestyleMatch(a, b *store.UserProfile) float64 {
	if a.Preferences == nil || b.Lifestyle == nil {
		return 0.5
	}

	score := 0.0
	factors := 0

	compare := func(pref, actual *bool, mismatch float64) {
		if pref == nil || actual == nil {
			return
		}
		if *pref == *actual {
			score += 1.0
		} else {
			score += mismatch
		}
		factors++
	}

	compare(a.Preferences.Smoking, b.Lifestyle.Smoking, lifestyleMismatchScore)
	compare(a.Preferences.PetFriendly, b.Lifestyle.PetFriendly, lifestyleMismatchScore)
	compare(a.Preferences.NightOwl, b.Lifestyle.NightOwl, nightOwlMismatchScore)

	if a.Preferences.GuestFrequency != "" && b.Lifestyle.GuestFrequency != "" {
		score += guestFrequencyMatch(a.Preferences.GuestFrequency, b.Lifestyle.GuestFrequency)
		factors++
	}

	if factors == 0 {
		return 0.5
	}
	return score / float64(factors)
}

// guestFrequencyMatch scores free-text guest habits by keyword tiers.
func guestFrequencyMatch(preferred, actual string) float64 {
	if strings.EqualFold(preferred, actual) {
		return 1.0
	}

	pref := strings.ToLower(preferred)
	act := strings.ToLower(actual)

	if strings.Contains(pref, "quiet") || strings.Contains(pref, "rarely") {
		switch {
		case strings.Contains(act, "rarely") || strings.Contains(act, "keep to myself"):
			return 1.0
		case strings.Contains(act, "occasionally"):
			return 0.7
		case strings.Contains(act, "frequently") || strings.Contains(act, "gatherings"):
			return 0.0
		}
	}

	if strings.Contains(pref, "social") || strings.Contains(pref, "gatherings") {
		switch {
		case strings.Contains(act, "frequently") || strings.Contains(act, "gatherings"):
			return 1.0
		case strings.Contains(act, "occasionally"):
			return 0.7
		case strings.Contains(act, "rarely") || strings.Contains(act, "quiet"):
			return 0.0
		}
	}

	if strings.Contains(pref, "don't mind") || strings.Contains(pref, "flexible") {
		return 0.8
	}

	return 0.5
}

// ========== BUDGET ==========

// budgetOverlap is the width of the overlap of the two budget ranges divided
// by the wider of the two ranges. Disjoint ranges score 0; a missing budget
// on either side scores a neutral 0.5.
func (s *AttributeScorer) budgetOverlap(a, b *store.UserProfile) float64 {
	if a.Budget == nil || b.Budget == nil {
		return 0.5
	}

	overlapMin := max(a.Budget.Min, b.Budget.Min)
	overlapMax := min(a.Budget.Max, b.Budget.Max)
	if overlapMax < overlapMin {
		return 0.0
	}

	widest := max(a.Budget.Max-a.Budget.Min, b.Budget.Max-b.Budget.Min)
	if widest <= 0 {
		return 0.0
	}
	return float64(overlapMax-overlapMin) / float64(widest)
}

// ========== LOCATION ==========

func passesCityRequirement(a, b *store.UserProfile) bool {
	cityA, cityB := a.CityCode(), b.CityCode()
	return cityA != "" && cityB != "" && cityA == cityB
}

// locationMatch scores proximity. Exact zip match is 1.0; within the same
// city the score decays with the numeric zip distance in tiers down to a 0.50
// floor; different (or missing) cities get a low fixed 0.1 since the hard
// filter usually removes them first.
func (s *AttributeScorer) locationMatch(a, b *store.UserProfile) float64 {
	if a.ZipCode == "" || b.ZipCode == "" {
		return 0.1
	}
	if a.ZipCode == b.ZipCode {
		return 1.0
	}
	if !passesCityRequirement(a, b) {
		return 0.1
	}

	numA, okA := zipNumber(a.ZipCode)
	numB, okB := zipNumber(b.ZipCode)
	if !okA || !okB {
		// Unparsable zip in the same city: neutral same-city score.
		return 0.70
	}

	distance := numA - numB
	if distance < 0 {
		distance = -distance
	}

	var score float64
	switch {
	case distance <= 10:
		score = 1.0 - float64(distance)*0.01
	case distance <= 50:
		score = 0.89 - float64(distance-10)*0.0035
	case distance <= 100:
		score = 0.74 - float64(distance-50)*0.0028
	default:
		capped := min(distance, 200)
		score = 0.59 - float64(capped-100)*0.0009
	}

	return math.Max(0.50, score)
}

// zipNumber extracts the numeric value of a zip code, ignoring non-digits.
func zipNumber(zip string) (int, bool) {
	n := 0
	seen := false
	for _, r := range zip {
		if r < '0' || r > '9' {
			continue
		}
		n = n*10 + int(r-'0')
		seen = true
	}
	return n, seen
}
