package reactor

import "testing"

func TestSlab_InsertGetRemove(t *testing.T) {
	s := NewSlab[string](ConnTokenBase, 4)

	tok1, err := s.Insert("a")
	if err != nil {
		t.Fatalf("insert a: %v", err)
	}
	tok2, err := s.Insert("b")
	if err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if tok1 == tok2 {
		t.Fatalf("expected distinct tokens, got %s twice", tok1)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	v, ok := s.Get(tok1)
	if !ok || *v != "a" {
		t.Fatalf("Get(tok1) = %v, %v; want \"a\", true", v, ok)
	}

	removed, ok := s.Remove(tok1)
	if !ok || removed != "a" {
		t.Fatalf("Remove(tok1) = %v, %v; want \"a\", true", removed, ok)
	}
	if s.Contains(tok1) {
		t.Fatalf("Contains(tok1) = true after Remove")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d after Remove, want 1", s.Len())
	}
}

func TestSlab_CapacityExceeded(t *testing.T) {
	s := NewSlab[int](0, 2)
	if _, err := s.Insert(1); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if _, err := s.Insert(2); err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if _, err := s.Insert(3); err != ErrCapacityExceeded {
		t.Fatalf("Insert over capacity = %v, want ErrCapacityExceeded", err)
	}
}

func TestSlab_TokenReuseAfterRemove(t *testing.T) {
	s := NewSlab[int](0, 1)
	tok, err := s.Insert(1)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Insert(2); err != ErrCapacityExceeded {
		t.Fatalf("expected full slab, got %v", err)
	}
	s.Remove(tok)
	tok2, err := s.Insert(2)
	if err != nil {
		t.Fatalf("insert after remove: %v", err)
	}
	if tok2 != tok {
		t.Fatalf("expected freed token %s to be reused, got %s", tok, tok2)
	}
}

func TestSlab_Each(t *testing.T) {
	s := NewSlab[int](0, 3)
	s.Insert(10)
	s.Insert(20)
	tok3, _ := s.Insert(30)
	s.Remove(tok3)

	seen := map[Token]int{}
	s.Each(func(tok Token, v *int) {
		seen[tok] = *v
	})
	if len(seen) != 2 {
		t.Fatalf("Each visited %d entries, want 2", len(seen))
	}
}

func TestSlab_BaseOffsetsTokens(t *testing.T) {
	s := NewSlab[int](ConnTokenBase, 1)
	tok, _ := s.Insert(1)
	if tok != ConnTokenBase {
		t.Fatalf("first token = %s, want %s", tok, ConnTokenBase)
	}
}

func TestIsListenerToken(t *testing.T) {
	if !isListenerToken(ListenerTokenBase) {
		t.Fatalf("expected listener base to be a listener token")
	}
	if isListenerToken(ConnTokenBase) {
		t.Fatalf("expected conn base to not be a listener token")
	}
}
