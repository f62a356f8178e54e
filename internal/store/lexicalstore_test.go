package store

import "testing"

func TestProximityTsQuery_Slop1UsesAdjacencyOperator(t *testing.T) {
	got := proximityTsQuery("vacation policy", 1)
	want := "vacation<->policy"
	if got != want {
		t.Fatalf("proximityTsQuery(slop=1) = %q, want %q", got, want)
	}
}

func TestProximityTsQuery_SlopNUsesDistanceOperator(t *testing.T) {
	got := proximityTsQuery("vacation policy details", 3)
	want := "vacation<3>policy<3>details"
	if got != want {
		t.Fatalf("proximityTsQuery(slop=3) = %q, want %q", got, want)
	}
}

func TestProximityTsQuery_TooFewContentWords(t *testing.T) {
	if got := proximityTsQuery("is the a", 1); got != "" {
		t.Fatalf("expected empty tsquery for all-stopword input, got %q", got)
	}
	if got := proximityTsQuery("policy", 1); got != "" {
		t.Fatalf("expected empty tsquery for single-word input, got %q", got)
	}
}

func TestOrTsQuery(t *testing.T) {
	got := orTsQuery("vacation policy")
	want := "vacation | policy"
	if got != want {
		t.Fatalf("orTsQuery = %q, want %q", got, want)
	}
}

func TestOrTsQuery_Empty(t *testing.T) {
	if got := orTsQuery("is a the"); got != "" {
		t.Fatalf("expected empty tsquery for all-stopword input, got %q", got)
	}
}
