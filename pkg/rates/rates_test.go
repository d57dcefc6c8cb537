package rates

import (
	"errors"
	"sync"
	"testing"
)

func TestTrackingRatesIteration(t *testing.T) {
	tr := NewTrackingRates()
	c := tr.Begin()

	if _, err := c.Current(); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("Current before Next: expected ErrInvalidCursor, got %v", err)
	}

	var got []DriveRate
	for c.Next() {
		r, err := c.Current()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 1 || got[0] != DriveSidereal {
		t.Fatalf("expected exactly [sidereal], got %v", got)
	}

	if c.Next() {
		t.Fatalf("Next after exhaustion should stay false")
	}
	if _, err := c.Current(); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("Current after exhaustion: expected ErrInvalidCursor, got %v", err)
	}

	c.Reset()
	if !c.Next() {
		t.Fatalf("Next after Reset should succeed")
	}
	if r, err := c.Current(); err != nil || r != DriveSidereal {
		t.Fatalf("after Reset got %v, %v", r, err)
	}
}

func TestTrackingRatesItem(t *testing.T) {
	tr := NewTrackingRates()
	if tr.Count() != 1 {
		t.Fatalf("expected 1 rate, got %d", tr.Count())
	}
	if r, err := tr.Item(1); err != nil || r != DriveSidereal {
		t.Fatalf("Item(1) = %v, %v", r, err)
	}
	for _, i := range []int{0, 2, -1} {
		if _, err := tr.Item(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("Item(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}
}

func TestTrackingRatesAllIsCopy(t *testing.T) {
	tr := NewTrackingRates()
	all := tr.All()
	all[0] = DriveKing
	if r, _ := tr.Item(1); r != DriveSidereal {
		t.Fatalf("collection was mutated through All()")
	}
}

func TestTrackingRatesConcurrentCursors(t *testing.T) {
	tr := NewTrackingRates()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			c := tr.Begin()
			for i := 0; i < 1000; i++ {
				// Each goroutine follows its own call sequence; the
				// outcome may only depend on it.
				if i%(w+2) == 0 {
					c.Reset()
				}
				advanced := c.Next()
				_, err := c.Current()
				if advanced != (err == nil) {
					errs <- errors.New("cursor state corrupted")
					return
				}
			}
			c.Reset()
			if !c.Next() || c.Next() {
				errs <- errors.New("unexpected final cursor position")
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestAxisRates(t *testing.T) {
	for _, name := range []string{"primary", "secondary", "tertiary"} {
		axis, err := ParseAxis(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ar := NewAxisRates(axis)
		if ar.Count() != 0 || len(ar.All()) != 0 {
			t.Fatalf("%s: expected no rates", name)
		}
		if _, err := ar.Item(1); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("%s: expected ErrIndexOutOfRange, got %v", name, err)
		}
	}
	if _, err := ParseAxis("quaternary"); err == nil {
		t.Fatalf("expected error for unknown axis")
	}
}

func TestDriveRateJSON(t *testing.T) {
	b, err := DriveSidereal.MarshalJSON()
	if err != nil || string(b) != `"sidereal"` {
		t.Fatalf("unexpected json %s (%v)", b, err)
	}
}
