package scopes_test

import (
	"testing"

	"github.com/senderpro/senderpro/pkg/iam/scopes"
)

func TestAll_CallersCannotMutateTheSet(t *testing.T) {
	first := scopes.All()
	first[0] = "tampered"

	for _, scope := range scopes.All() {
		if scope == "tampered" {
			t.Fatal("mutating the returned slice leaked into the scope set")
		}
	}
}

func TestIsRecognized(t *testing.T) {
	for _, scope := range scopes.All() {
		if !scopes.IsRecognized(scope) {
			t.Fatalf("scope %s not recognized", scope)
		}
	}
	for _, unknown := range []string{"file_storage", "email-marketing", "", "*"} {
		if scopes.IsRecognized(unknown) {
			t.Fatalf("%q must not be recognized", unknown)
		}
	}
}

func TestDescriptions_CoverEveryScope(t *testing.T) {
	for _, scope := range scopes.All() {
		if scopes.Descriptions[scope] == "" {
			t.Fatalf("scope %s has no description", scope)
		}
	}
}
