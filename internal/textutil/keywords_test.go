package textutil

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("What is the vacation policy?")
	want := []string{"what", "is", "the", "vacation", "policy"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
}

func TestContentWords_DropsStopwordsAndShortWords(t *testing.T) {
	words := Tokenize("is a vacation policy ok")
	got := ContentWords(words, 2)
	want := []string{"vacation", "policy"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ContentWords = %v, want %v", got, want)
	}
}

func TestExtractQueryKeywords_SkipGramAcrossStopword(t *testing.T) {
	keywords := ExtractQueryKeywords("procedimiento de degasado")
	found := false
	for _, k := range keywords {
		if k == "procedimiento degasado" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected skip-gram 'procedimiento degasado' in %v", keywords)
	}
}

func TestExtractQueryKeywords_IncludesContentWords(t *testing.T) {
	keywords := ExtractQueryKeywords("what is the vacation policy")
	hasVacation, hasPolicy := false, false
	for _, k := range keywords {
		if k == "vacation" {
			hasVacation = true
		}
		if k == "policy" {
			hasPolicy = true
		}
	}
	if !hasVacation || !hasPolicy {
		t.Fatalf("expected vacation and policy as keywords, got %v", keywords)
	}
}

func TestIsStopword(t *testing.T) {
	if !IsStopword("the") {
		t.Error("expected 'the' to be a stopword")
	}
	if !IsStopword("que") {
		t.Error("expected Spanish 'que' to be a stopword")
	}
	if IsStopword("vacation") {
		t.Error("did not expect 'vacation' to be a stopword")
	}
}
