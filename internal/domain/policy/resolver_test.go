package policy

import "testing"

func TestResolve_UnknownNameResolvesToItself(t *testing.T) {
	r, err := NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	got := r.Resolve("read_file")
	if len(got) != 1 || got[0] != "read_file" {
		t.Errorf("Resolve() = %v, want [read_file]", got)
	}
}

func TestResolve_AliasExpandsToMembers(t *testing.T) {
	r, err := NewResolver(map[string][]string{"write_group": {"write_file", "write_db"}})
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	got := r.Resolve("write_group")
	if len(got) != 2 || got[0] != "write_file" || got[1] != "write_db" {
		t.Errorf("Resolve() = %v, want [write_file write_db]", got)
	}
}

func TestNewResolver_RejectsMultiLevelAlias(t *testing.T) {
	_, err := NewResolver(map[string][]string{
		"outer": {"inner"},
		"inner": {"write_file"},
	})
	if err == nil {
		t.Fatal("NewResolver() expected error for multi-level alias, got nil")
	}
}

func TestMatches_DirectName(t *testing.T) {
	r, err := NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	if !r.Matches("read_file", "read_file") {
		t.Error("Matches() = false, want true for identical names")
	}
}

func TestMatches_AliasMember(t *testing.T) {
	r, err := NewResolver(map[string][]string{"write_group": {"write_file", "write_db"}})
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	if !r.Matches("write_db", "write_group") {
		t.Error("Matches() = false, want true for alias member")
	}
	if r.Matches("read_file", "write_group") {
		t.Error("Matches() = true, want false for non-member")
	}
}

func TestIsMemberOfAny(t *testing.T) {
	r, err := NewResolver(map[string][]string{"danger": {"delete_file", "drop_table"}})
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	if !r.IsMemberOfAny("delete_file", []string{"read_file", "danger"}) {
		t.Error("IsMemberOfAny() = false, want true")
	}
	if r.IsMemberOfAny("read_file", []string{"danger"}) {
		t.Error("IsMemberOfAny() = true, want false")
	}
}
