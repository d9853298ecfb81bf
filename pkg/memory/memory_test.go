package memory

import "testing"

func TestModality_Valid(t *testing.T) {
	t.Parallel()

	for _, m := range Modalities {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if Modality("audio").Valid() {
		t.Error("audio should not be a known modality")
	}
}

func TestParseModality(t *testing.T) {
	t.Parallel()

	m, err := ParseModality("pdf")
	if err != nil {
		t.Fatalf("ParseModality: %v", err)
	}
	if m != ModalityPDF {
		t.Errorf("got %q, want pdf", m)
	}

	if _, err := ParseModality("hologram"); err == nil {
		t.Fatal("expected error for unknown modality")
	}
}

func TestMemory_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	src := "https://example.com"
	score := 0.8
	orig := Memory{
		ID:        "m1",
		SourceURI: &src,
		Score:     &score,
		Metadata:  map[string]any{"k": "v"},
	}

	cp := orig.Clone()
	*cp.SourceURI = "changed"
	*cp.Score = 0.1
	cp.Metadata["k"] = "changed"

	if orig.Source() != "https://example.com" {
		t.Errorf("source mutated through clone: %q", orig.Source())
	}
	if orig.Relevance() != 0.8 {
		t.Errorf("score mutated through clone: %v", orig.Relevance())
	}
	if orig.Metadata["k"] != "v" {
		t.Errorf("metadata mutated through clone: %v", orig.Metadata["k"])
	}
}

func TestMemory_RelevanceUnscored(t *testing.T) {
	t.Parallel()

	if got := (Memory{}).Relevance(); got != -1 {
		t.Errorf("Relevance() = %v, want -1", got)
	}
	if CloneAll(nil) != nil {
		t.Error("CloneAll(nil) should be nil")
	}
}
