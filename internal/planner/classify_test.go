package planner

import "testing"

func TestClassify_OccurrenceQuotedPhrase(t *testing.T) {
	c := Classify(`find all occurrences of "SKU-4412"`, 5, nil, false)
	if c.Kind != KindOccurrence {
		t.Fatalf("expected occurrence, got %v", c.Kind)
	}
	if c.OccurrenceTerm != "SKU-4412" {
		t.Fatalf("expected term SKU-4412, got %q", c.OccurrenceTerm)
	}
}

func TestClassify_OccurrenceOfPattern(t *testing.T) {
	c := Classify("occurrences of warranty clause", 5, nil, false)
	if c.Kind != KindOccurrence {
		t.Fatalf("expected occurrence, got %v", c.Kind)
	}
	if c.OccurrenceTerm != "warranty clause" {
		t.Fatalf("expected warranty clause, got %q", c.OccurrenceTerm)
	}
}

func TestClassify_ExclusionBeatsOccurrenceKeyword(t *testing.T) {
	c := Classify("what is the occurrence rate described in the handbook", 5, nil, false)
	if c.Kind == KindOccurrence {
		t.Fatalf("expected exclusion to suppress occurrence classification")
	}
}

func TestClassify_SummaryMultipliesK(t *testing.T) {
	c := Classify("give me a summary of this document", 5, nil, false)
	if c.Kind != KindSummary {
		t.Fatalf("expected summary, got %v", c.Kind)
	}
	if c.EffectiveK != 20 {
		t.Fatalf("expected k floored at 20, got %d", c.EffectiveK)
	}

	c2 := Classify("summarize this", 15, nil, false)
	if c2.EffectiveK != 30 {
		t.Fatalf("expected k*2=30, got %d", c2.EffectiveK)
	}
}

func TestClassify_SummaryEnablesAgenticWhenConfigured(t *testing.T) {
	c := Classify("summarize this document", 5, nil, true)
	if !c.EnableAgentic {
		t.Fatalf("expected agentic enabled for summary query when configured")
	}
	c2 := Classify("summarize this document", 5, nil, false)
	if c2.EnableAgentic {
		t.Fatalf("expected agentic disabled when not configured")
	}
}

func TestClassify_ContactQuery(t *testing.T) {
	c := Classify("what is the support email for billing issues", 5, nil, false)
	if !c.IsContact {
		t.Fatalf("expected contact query detected")
	}
}

func TestClassify_DocumentScoped(t *testing.T) {
	known := []string{"employee handbook.pdf", "catalog.pdf"}
	c := Classify("what does the employee handbook say about vacation", 5, known, false)
	if len(c.DocumentNames) != 1 || c.DocumentNames[0] != "employee handbook.pdf" {
		t.Fatalf("expected employee handbook.pdf matched, got %v", c.DocumentNames)
	}
}

func TestClassify_DocumentScopedRequiresAllWords(t *testing.T) {
	known := []string{"employee handbook.pdf"}
	c := Classify("what does the handbook say", 5, known, false)
	if len(c.DocumentNames) != 0 {
		t.Fatalf("expected no match when only one of two words present, got %v", c.DocumentNames)
	}
}

func TestClassify_ComparativeTriggersAgentic(t *testing.T) {
	c := Classify("compare the warranty terms versus the return policy", 5, nil, true)
	if !c.EnableAgentic {
		t.Fatalf("expected comparative query to enable agentic decomposition")
	}
}
