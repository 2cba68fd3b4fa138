package catalog

import (
	"sort"
	"testing"
)

func TestNewFiltersByProvider(t *testing.T) {
	c := New([]string{"anthropic", "google"})

	if len(c.List()) == 0 {
		t.Fatal("catalog is empty")
	}
	for _, def := range c.List() {
		if def.Provider != "anthropic" && def.Provider != "google" {
			t.Errorf("unexpected provider %q in filtered catalog", def.Provider)
		}
	}
	if _, ok := c.Lookup("openai/gpt-5"); ok {
		t.Error("openai model visible without registered provider")
	}
}

func TestLookupFullID(t *testing.T) {
	c := New([]string{"anthropic", "openai", "google", "groq"})

	def, ok := c.Lookup("google/gemini-2.5-pro")
	if !ok {
		t.Fatal("gemini-2.5-pro not found")
	}
	if def.FullID() != "google/gemini-2.5-pro" {
		t.Errorf("FullID = %q", def.FullID())
	}
	if !def.Reasoning {
		t.Error("gemini-2.5-pro should flag reasoning")
	}

	if _, ok := c.Lookup("google/unknown"); ok {
		t.Error("unknown model resolved")
	}
}

func TestListSorted(t *testing.T) {
	c := New([]string{"anthropic", "openai", "google", "groq"})
	list := c.List()
	sorted := sort.SliceIsSorted(list, func(i, j int) bool {
		return list[i].FullID() < list[j].FullID()
	})
	if !sorted {
		t.Error("List() is not sorted by full ID")
	}
}
