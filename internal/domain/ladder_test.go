package domain

import "testing"

func TestLadderSetAndAddClamp(t *testing.T) {
	l := Ladder{}
	l.Set(10, Bid, 2)
	l.Add(10, Bid, -5)
	if got, ok := l[10]; !ok || got.Bid != 0 {
		t.Fatalf("expected clamped zero entry, got %+v ok=%v", got, ok)
	}

	l.Set(11, Ask, -1)
	if got := l[11]; got.Ask != 0 {
		t.Fatalf("expected negative set clamped, got %+v", got)
	}

	l.Add(12, Ask, 1.5)
	l.Add(12, Ask, 1)
	if got := l[12]; got.Ask != 2.5 || got.Bid != 0 {
		t.Fatalf("unexpected level %+v", got)
	}
}

func TestLadderClone(t *testing.T) {
	l := Ladder{1: {Bid: 1}}
	c := l.Clone()
	c.Set(1, Bid, 9)
	if l[1].Bid != 1 {
		t.Fatal("clone shares storage")
	}
}
