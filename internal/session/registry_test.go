package session

import (
	"reflect"
	"testing"
)

func TestRegistryPutGetRemove(t *testing.T) {
	r := NewRegistry()
	tab := &ShellTab{Title: "one"}

	r.Put("a", tab)
	got, ok := r.Get("a")
	if !ok || got != SessionTab(tab) {
		t.Fatal("Get() did not return the stored tab")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	removed, ok := r.Remove("a")
	if !ok || removed != SessionTab(tab) {
		t.Fatal("Remove() did not return the stored tab")
	}
	if _, ok := r.Get("a"); ok {
		t.Error("tab still present after Remove()")
	}
	if _, ok := r.Remove("a"); ok {
		t.Error("second Remove() reported success")
	}
}

func TestRegistryOrderPreserved(t *testing.T) {
	r := NewRegistry()
	r.Put("a", &ShellTab{})
	r.Put("b", &DesktopTab{})
	r.Put("c", &ShellTab{})

	if got := r.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Keys() = %v, want [a b c]", got)
	}

	r.Remove("b")
	if got := r.Keys(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Keys() after Remove = %v, want [a c]", got)
	}
}

func TestRegistryRekeyPreservesIdentityAndPosition(t *testing.T) {
	r := NewRegistry()
	first := &ShellTab{}
	tab := &DesktopTab{Title: "desk"}
	r.Put("a", first)
	r.Put("provisional", tab)
	r.Put("c", &ShellTab{})
	r.SetActive("provisional")

	if !r.Rekey("provisional", "confirmed") {
		t.Fatal("Rekey() reported failure")
	}
	got, ok := r.Get("confirmed")
	if !ok || got != SessionTab(tab) {
		t.Fatal("re-keyed tab lost its identity")
	}
	if _, ok := r.Get("provisional"); ok {
		t.Error("old key still resolves after Rekey()")
	}
	if got := r.Keys(); !reflect.DeepEqual(got, []string{"a", "confirmed", "c"}) {
		t.Errorf("Keys() = %v, want [a confirmed c]", got)
	}
	if r.Active() != "confirmed" {
		t.Errorf("Active() = %q, want %q", r.Active(), "confirmed")
	}
}

func TestRegistryRekeyEdgeCases(t *testing.T) {
	r := NewRegistry()
	r.Put("a", &ShellTab{})
	r.Put("b", &ShellTab{})

	if r.Rekey("missing", "x") {
		t.Error("Rekey() of a missing key reported success")
	}
	if r.Rekey("a", "b") {
		t.Error("Rekey() onto a taken key reported success")
	}
	if !r.Rekey("a", "a") {
		t.Error("Rekey() to the same key should be a successful no-op")
	}
}

func TestRegistryActiveCleared(t *testing.T) {
	r := NewRegistry()
	r.Put("a", &ShellTab{})

	if r.SetActive("nope") {
		t.Error("SetActive() of unknown key reported success")
	}
	if !r.SetActive("a") {
		t.Fatal("SetActive() failed for a present key")
	}
	r.Remove("a")
	if r.Active() != "" {
		t.Errorf("Active() = %q after removing the active tab, want empty", r.Active())
	}
}
