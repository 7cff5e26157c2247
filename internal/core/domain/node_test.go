package domain_test

import (
	"slices"
	"testing"

	"go.trai.ch/mason/internal/core/domain"
)

func TestPredicate_Evaluate(t *testing.T) {
	yes, no := true, false
	env := map[string]string{"CI": "true", "MODE": "release"}

	cases := []struct {
		name string
		pred domain.Predicate
		want bool
	}{
		{"empty always passes", domain.Predicate{}, true},
		{"constant true", domain.Predicate{Constant: &yes}, true},
		{"constant false", domain.Predicate{Constant: &no}, false},
		{"env matches", domain.Predicate{EnvVar: domain.NewInternedString("CI"), Equals: "true"}, true},
		{"env differs", domain.Predicate{EnvVar: domain.NewInternedString("MODE"), Equals: "debug"}, false},
		{"env unset", domain.Predicate{EnvVar: domain.NewInternedString("MISSING"), Equals: "x"}, false},
		{"negated match", domain.Predicate{EnvVar: domain.NewInternedString("CI"), Equals: "true", Negate: true}, false},
		{"negated mismatch", domain.Predicate{EnvVar: domain.NewInternedString("MODE"), Equals: "debug", Negate: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pred.Evaluate(env); got != tc.want {
				t.Errorf("Evaluate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNode_ImplementationIdentity(t *testing.T) {
	n := domain.Node{
		Name:       domain.NewInternedString("compile"),
		Command:    []string{"gcc", "-c", "main.c"},
		Tool:       "/opt/gcc/bin/gcc",
		WorkingDir: domain.NewInternedString("src"),
	}

	id := n.ImplementationIdentity()
	want := []string{"gcc", "-c", "main.c", "/opt/gcc/bin/gcc", "src"}
	if !slices.Equal(id, want) {
		t.Errorf("identity = %v, want %v", id, want)
	}

	// Environment and dependencies are not part of the identity.
	n.Environment = map[string]string{"X": "1"}
	n.DependsOn = domain.InternStrings([]string{"other"})
	if !slices.Equal(n.ImplementationIdentity(), want) {
		t.Error("identity changed with non-identity fields")
	}
}

func TestInputProperty_IsFileInput(t *testing.T) {
	file := domain.InputProperty{
		Name:     domain.NewInternedString("sources"),
		Patterns: domain.InternStrings([]string{"src/**/*.go"}),
	}
	scalar := domain.InputProperty{
		Name:  domain.NewInternedString("flags"),
		Value: "-O2",
	}

	if !file.IsFileInput() {
		t.Error("expected pattern property to be a file input")
	}
	if scalar.IsFileInput() {
		t.Error("expected value property to not be a file input")
	}
}
