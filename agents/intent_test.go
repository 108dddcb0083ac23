package agents

import (
	"reflect"
	"testing"
)

func TestClassifyPricingMessage(t *testing.T) {
	r := NewRecognizer()
	result := r.Classify("what should I price this camera at?", nil)

	if result.Intent != IntentPricing {
		t.Errorf("Intent = %q, want pricing", result.Intent)
	}
	if result.TargetRole != RoleMarket {
		t.Errorf("TargetRole = %q, want market", result.TargetRole)
	}
	if result.Confidence < 0.1 {
		t.Errorf("Confidence = %v, want >= 0.1", result.Confidence)
	}
	found := false
	for _, kw := range result.MatchedKeywords {
		if kw == "price" {
			found = true
		}
	}
	if !found {
		t.Errorf("MatchedKeywords = %v, want to include \"price\"", result.MatchedKeywords)
	}
}

func TestClassifyGeneralFallback(t *testing.T) {
	r := NewRecognizer()
	result := r.Classify("hello there", nil)

	if result.Intent != IntentGeneral {
		t.Errorf("Intent = %q, want general", result.Intent)
	}
	if result.TargetRole != RoleLiaison {
		t.Errorf("TargetRole = %q, want liaison", result.TargetRole)
	}
	if result.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want exactly 0.5", result.Confidence)
	}
}

func TestClassifyByIntent(t *testing.T) {
	tests := []struct {
		message string
		intent  Intent
		role    Role
	}{
		{"how do my competitors price similar items", IntentCompetition, RoleMarket},
		{"improve my listing title please", IntentListing, RoleContent},
		{"which keyword should I target for seo", IntentSEO, RoleContent},
		{"what carrier should I use for shipping", IntentShipping, RoleLogistics},
		{"I need to restock my inventory", IntentInventory, RoleLogistics},
		{"help me plan a growth strategy", IntentStrategy, RoleExecutive},
		{"should I decide between these two suppliers", IntentDecision, RoleExecutive},
	}

	r := NewRecognizer()
	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			result := r.Classify(tt.message, nil)
			if result.Intent != tt.intent {
				t.Errorf("Classify(%q).Intent = %q, want %q", tt.message, result.Intent, tt.intent)
			}
			if result.TargetRole != tt.role {
				t.Errorf("TargetRole = %q, want %q", result.TargetRole, tt.role)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	r := NewRecognizer()
	message := "what is the best price to charge for this"
	first := r.Classify(message, nil)
	for i := 0; i < 5; i++ {
		if got := r.Classify(message, nil); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d returned %+v, want identical %+v", i, got, first)
		}
	}
}

func TestTargetRoleMapping(t *testing.T) {
	mapping := map[Intent]Role{
		IntentPricing:     RoleMarket,
		IntentCompetition: RoleMarket,
		IntentListing:     RoleContent,
		IntentSEO:         RoleContent,
		IntentShipping:    RoleLogistics,
		IntentInventory:   RoleLogistics,
		IntentStrategy:    RoleExecutive,
		IntentDecision:    RoleExecutive,
		IntentGeneral:     RoleLiaison,
	}
	for intent, role := range mapping {
		if got := intent.TargetRole(); got != role {
			t.Errorf("%s.TargetRole() = %q, want %q", intent, got, role)
		}
	}
}

func TestConfidenceClamped(t *testing.T) {
	r := NewRecognizer()
	// A message matching every pricing keyword plus the boost would exceed 1.0
	result := r.Classify("price pricing priced cost worth value charge how much", nil)
	if result.Confidence > 1.0 {
		t.Errorf("Confidence = %v, want clamped to 1.0", result.Confidence)
	}
}
