package multiset

import "testing"

func TestCounted_InsertErase(t *testing.T) {
	c := New[string]()

	if !c.IsEmpty() {
		t.Fatal("expected new multiset to be empty")
	}

	c.Insert("a", 1)
	c.Insert("a", 2)
	c.Insert("b", 1)
	c.Insert("c", 0)

	if got := c.Count("a"); got != 3 {
		t.Errorf("Count(a) = %d, want 3", got)
	}
	if got := c.Total(); got != 4 {
		t.Errorf("Total() = %d, want 4", got)
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2 (zero insert must not create a key)", got)
	}

	c.Erase("a", 3)
	if got := c.Count("a"); got != 0 {
		t.Errorf("Count(a) after erase = %d, want 0", got)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len() after erase = %d, want 1", got)
	}

	c.Erase("b", 0)
	c.Erase("b", 1)
	if !c.IsEmpty() {
		t.Errorf("expected empty multiset, total=%d", c.Total())
	}
}

func TestCounted_ErasePanics(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Counted[int])
		key   int
		n     int
		want  string
	}{
		{
			name:  "absent key",
			setup: func(c *Counted[int]) {},
			key:   7,
			n:     1,
			want:  "multiset: erase of an absent key",
		},
		{
			name:  "exceeds count",
			setup: func(c *Counted[int]) { c.Insert(7, 1) },
			key:   7,
			n:     2,
			want:  "multiset: erase exceeds current count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New[int]()
			tt.setup(c)

			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("expected panic")
				}
				if r != tt.want {
					t.Errorf("panic = %v, want %q", r, tt.want)
				}
			}()
			c.Erase(tt.key, tt.n)
		})
	}
}

func TestCounted_MoveCopy(t *testing.T) {
	src := New[string]()
	dst := New[string]()

	src.Insert("r", 3)
	src.Insert("s", 1)
	dst.Insert("r", 1)

	src.Copy(dst, "s")
	if src.Count("s") != 1 || dst.Count("s") != 1 {
		t.Errorf("Copy: src=%d dst=%d, want 1/1", src.Count("s"), dst.Count("s"))
	}

	src.Move(dst, "r")
	if src.Count("r") != 0 {
		t.Errorf("Move left %d behind", src.Count("r"))
	}
	if dst.Count("r") != 4 {
		t.Errorf("Move: dst count = %d, want 4", dst.Count("r"))
	}
	if src.Total() != 1 || dst.Total() != 5 {
		t.Errorf("totals src=%d dst=%d, want 1/5", src.Total(), dst.Total())
	}

	// Moving an absent key is a no-op.
	src.Move(dst, "missing")
	if dst.Total() != 5 {
		t.Errorf("Move of absent key changed total to %d", dst.Total())
	}
}

func TestCounted_ZeroValue(t *testing.T) {
	var c Counted[string]
	if c.Count("x") != 0 || c.Clear("x") != 0 {
		t.Error("zero value must answer queries")
	}
	c.Insert("x", 2)
	if c.Total() != 2 {
		t.Errorf("Total() = %d, want 2", c.Total())
	}
}
