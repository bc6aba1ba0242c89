package vecindex

import (
	"testing"
)

func TestDatapointIDs(t *testing.T) {
	if got := ProfileDatapointID("u1"); got != "u1_profile" {
		t.Errorf("ProfileDatapointID(u1) = %s", got)
	}
	if got := PreferenceDatapointID("u1"); got != "u1_preference" {
		t.Errorf("PreferenceDatapointID(u1) = %s", got)
	}
}

func TestSplitDatapointID(t *testing.T) {
	testCases := []struct {
		id      string
		userID  string
		vecType string
		ok      bool
	}{
		{"u1_profile", "u1", VectorTypeProfile, true},
		{"u1_preference", "u1", VectorTypePreference, true},
		// Identity-provider IDs contain underscores themselves.
		{"user_2abc_profile", "user_2abc", VectorTypeProfile, true},
		{"u1", "", "", false},
		{"u1_unknown", "", "", false},
	}

	for _, tc := range testCases {
		userID, vecType, ok := SplitDatapointID(tc.id)
		if userID != tc.userID || vecType != tc.vecType || ok != tc.ok {
			t.Errorf("SplitDatapointID(%s) = (%s, %s, %v), want (%s, %s, %v)",
				tc.id, userID, vecType, ok, tc.userID, tc.vecType, tc.ok)
		}
	}
}
