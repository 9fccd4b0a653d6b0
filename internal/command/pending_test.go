package command

import (
	"testing"

	"github.com/google/uuid"
)

func TestPendingKey(t *testing.T) {
	if got := PendingKey("/ask", "alice", 42); got != "/ask|alice|42" {
		t.Errorf("PendingKey = %q", got)
	}
	if PendingKey("/a", "b", -1) == PendingKey("/a", "b", 1) {
		t.Error("chat sign must be part of the key")
	}
}

func TestPendingReplies_SetTake(t *testing.T) {
	p := NewPendingReplies()
	owner := uuid.New()
	p.Set(owner, "k", "/ask")
	p.Set(owner, "k", "/ask2")
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
	got, ok := p.Take("k")
	if !ok || got != "/ask2" {
		t.Errorf("Take = %q, %v; want /ask2, true", got, ok)
	}
	if _, ok := p.Take("k"); ok {
		t.Error("second Take succeeded")
	}
}

func TestPendingReplies_RemoveOwner(t *testing.T) {
	var p PendingReplies
	a, b := uuid.New(), uuid.New()
	p.Set(a, "k1", "/a")
	p.Set(a, "k2", "/a")
	p.Set(b, "k3", "/b")

	if n := p.RemoveOwner(a); n != 2 {
		t.Errorf("RemoveOwner = %d, want 2", n)
	}
	if _, ok := p.Peek("k3"); !ok {
		t.Error("other owner's entry removed")
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d, want 1", p.Len())
	}
}
