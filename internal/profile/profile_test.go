package profile

import (
	"testing"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name:    "sqlite without dsn gets default",
			profile: Profile{Mode: "dev", Driver: "sqlite", Data: ".", Port: 8080},
			wantErr: false,
		},
		{
			name:    "postgres requires dsn",
			profile: Profile{Mode: "dev", Driver: "postgres", Data: ".", Port: 8080},
			wantErr: true,
		},
		{
			name:    "unknown driver rejected",
			profile: Profile{Mode: "dev", Driver: "mysql", Data: ".", Port: 8080},
			wantErr: true,
		},
		{
			name:    "invalid port rejected",
			profile: Profile{Mode: "dev", Driver: "sqlite", Data: ".", Port: 70000},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.profile.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateNormalizesMode(t *testing.T) {
	p := Profile{Mode: "staging", Driver: "sqlite", Data: ".", Port: 8080}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != "demo" {
		t.Errorf("expected mode to normalize to demo, got %s", p.Mode)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	p := Profile{}
	p.FromEnv()

	if p.EmbeddingProvider != "openai" {
		t.Errorf("expected default provider openai, got %s", p.EmbeddingProvider)
	}
	if p.EmbeddingBaseURL == "" || p.EmbeddingModel == "" {
		t.Errorf("expected provider defaults applied, got base=%q model=%q", p.EmbeddingBaseURL, p.EmbeddingModel)
	}
	if p.HardFilterPolicy != "gender+city" {
		t.Errorf("expected default hard filter policy gender+city, got %s", p.HardFilterPolicy)
	}
	if p.EmbeddingDimensions != 768 {
		t.Errorf("expected default dimensions 768, got %d", p.EmbeddingDimensions)
	}
}

func TestFromEnvUnknownPolicy(t *testing.T) {
	t.Setenv("NESTMATE_HARD_FILTER_POLICY", "zodiac")
	p := Profile{}
	p.FromEnv()
	if p.HardFilterPolicy != "gender+city" {
		t.Errorf("expected fallback to gender+city, got %s", p.HardFilterPolicy)
	}
}
