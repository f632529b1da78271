package guarded

import (
	"bytes"
	"sync"
	"testing"
)

func TestAllocateFromRoundTrip(t *testing.T) {
	want := []byte("correct horse battery staple")
	b, err := AllocateFrom(want)
	if err != nil {
		t.Fatalf("AllocateFrom: %v", err)
	}
	defer b.Destroy()

	var got []byte
	err = b.View(func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestViewMutMutatesInPlace(t *testing.T) {
	b, err := Allocate(4)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer b.Destroy()

	if err := b.ViewMut(func(p []byte) error {
		copy(p, []byte{1, 2, 3, 4})
		return nil
	}); err != nil {
		t.Fatalf("ViewMut: %v", err)
	}

	err = b.View(func(p []byte) error {
		if !bytes.Equal(p, []byte{1, 2, 3, 4}) {
			t.Fatalf("unexpected contents: %v", p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestDestroyBlocksFurtherUse(t *testing.T) {
	b, err := AllocateFrom([]byte{9, 9, 9})
	if err != nil {
		t.Fatalf("AllocateFrom: %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := b.View(func([]byte) error { return nil }); err != ErrClosed {
		t.Fatalf("View after Destroy: got %v, want ErrClosed", err)
	}
}

func TestCloneSharesRegionUntilLastDestroy(t *testing.T) {
	a, err := AllocateFrom([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("AllocateFrom: %v", err)
	}
	c := a.Clone()

	if err := a.Destroy(); err != nil {
		t.Fatalf("Destroy a: %v", err)
	}

	// c still holds the region alive.
	err = c.View(func(p []byte) error {
		if !bytes.Equal(p, []byte{1, 2, 3}) {
			t.Fatalf("unexpected contents after sibling destroy: %v", p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View on surviving clone: %v", err)
	}

	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy c: %v", err)
	}
	if err := c.View(func([]byte) error { return nil }); err != ErrClosed {
		t.Fatalf("View after final Destroy: got %v, want ErrClosed", err)
	}
}

func TestConcurrentReadersAllowedWriterExclusive(t *testing.T) {
	b, err := AllocateFrom([]byte("concurrent"))
	if err != nil {
		t.Fatalf("AllocateFrom: %v", err)
	}
	defer b.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.View(func(p []byte) error {
				if len(p) != len("concurrent") {
					t.Errorf("unexpected length %d", len(p))
				}
				return nil
			})
		}()
	}
	wg.Wait()

	if err := b.ViewMut(func(p []byte) error {
		copy(p, []byte("mutatedddd"))
		return nil
	}); err != nil {
		t.Fatalf("ViewMut: %v", err)
	}
}

func TestEqualConstantTime(t *testing.T) {
	a, _ := AllocateFrom([]byte("secretvalue"))
	b, _ := AllocateFrom([]byte("secretvalue"))
	c, _ := AllocateFrom([]byte("othervalue!"))
	defer a.Destroy()
	defer b.Destroy()
	defer c.Destroy()

	eq, err := Equal(a, b)
	if err != nil || !eq {
		t.Fatalf("Equal(a,b) = %v, %v, want true, nil", eq, err)
	}
	eq, err = Equal(a, c)
	if err != nil || eq {
		t.Fatalf("Equal(a,c) = %v, %v, want false, nil", eq, err)
	}
}

func TestAllocateZeroLength(t *testing.T) {
	if _, err := Allocate(0); err != ErrZeroLength {
		t.Fatalf("Allocate(0) = %v, want ErrZeroLength", err)
	}
}

func TestAllocateModeReducedRoundTripsAndZeroises(t *testing.T) {
	want := []byte("reduced mode payload")
	b, err := AllocateFromMode(want, ModeReduced)
	if err != nil {
		t.Fatalf("AllocateFromMode: %v", err)
	}

	var got []byte
	err = b.View(func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}

	region := b.s.region.(*plainRegion)
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	for _, v := range region.data {
		if v != 0 {
			t.Fatalf("region not zeroised after Destroy: %v", region.data)
		}
	}
}
