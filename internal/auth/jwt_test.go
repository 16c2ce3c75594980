package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("term-1", "terminal", "mealcard-verify", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "secret", "mealcard-verify")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "term-1" || claims.Role != "terminal" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsBadToken(t *testing.T) {
	pair, err := Issue("term-1", "terminal", "mealcard-verify", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := Parse(pair.AccessToken, "wrong-key", "mealcard-verify"); err == nil {
		t.Error("wrong signing key accepted")
	}
	if _, err := Parse(pair.AccessToken, "secret", "other-issuer"); err == nil {
		t.Error("wrong issuer accepted")
	}
	if _, err := Parse("not-a-jwt", "secret", "mealcard-verify"); err == nil {
		t.Error("garbage token accepted")
	}
}
