package mainloop

import (
	"testing"
	"time"
)

func TestTickSchedulerFiresInSubmissionOrder(t *testing.T) {
	s := NewTickScheduler(time.Millisecond)
	defer s.Stop()

	got := make(chan int, 2)
	s.RequestFrame(func() { got <- 1 })
	s.RequestFrame(func() { got <- 2 })

	for want := 1; want <= 2; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("expected callback %d, got %d", want, v)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("callback %d never fired", want)
		}
	}
}

func TestTickSchedulerCancelPreventsFiring(t *testing.T) {
	s := NewTickScheduler(time.Millisecond)
	defer s.Stop()

	canceled := make(chan struct{}, 1)
	kept := make(chan struct{}, 1)
	h := s.RequestFrame(func() { canceled <- struct{}{} })
	s.CancelFrame(h)
	s.RequestFrame(func() { kept <- struct{}{} })

	select {
	case <-kept:
	case <-time.After(5 * time.Second):
		t.Fatal("kept callback never fired")
	}
	select {
	case <-canceled:
		t.Fatal("canceled callback fired")
	default:
	}
}

func TestTickSchedulerStopDropsQueuedWork(t *testing.T) {
	s := NewTickScheduler(time.Hour)

	fired := make(chan struct{}, 2)
	s.RequestFrame(func() { fired <- struct{}{} })
	s.Stop()
	s.RequestFrame(func() { fired <- struct{}{} })

	select {
	case <-fired:
		t.Fatal("callback fired after Stop")
	case <-time.After(50 * time.Millisecond):
	}

	// Repeated Stop is a no-op.
	s.Stop()
}
