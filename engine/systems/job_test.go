package systems

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/spark/engine/core"
)

func TestJobSystem(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("NewJobSystem(0, 1):\nhave %v\nwant %v", err, ErrNoWorkers)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("NewJobSystem(1, -1):\nhave %v\nwant %v", err, ErrNegativeChannelSize)
	}

	js, err := NewJobSystem(2, 0)
	if err != nil {
		t.Fatalf("NewJobSystem: unexpected error:\n%v", err)
	}

	var completed atomic.Int32
	ok := NewJob(JOB_TYPE_GENERAL, "ok", func() error { return nil })
	ok.OnComplete = func() { completed.Add(1) }
	failure := errors.New("boom")
	var failed error
	bad := NewJob(JOB_TYPE_GENERAL, "bad", func() error { return failure })
	bad.OnFailure = func(err error) { failed = err }
	panicky := NewJob(JOB_TYPE_GENERAL, "panic", func() error { panic("oops") })

	js.Submit(ok)
	js.AddWorkNonBlocking(bad)
	js.AddWorkNonBlocking(panicky)

	if err := ok.Wait(); err != nil {
		t.Fatalf("ok.Wait: unexpected error:\n%v", err)
	}
	if err := bad.Wait(); !errors.Is(err, failure) || !errors.Is(failed, failure) {
		t.Fatalf("bad.Wait:\nhave %v (callback %v)\nwant %v", err, failed, failure)
	}
	if err := panicky.Wait(); err == nil {
		t.Fatal("panicky.Wait: panic not reported")
	}
	if completed.Load() != 1 || !ok.Done() {
		t.Fatal("OnComplete: not called exactly once")
	}

	if err := js.Shutdown(); err != nil {
		t.Fatalf("Shutdown: unexpected error:\n%v", err)
	}
	late := js.Submit(NewJob(JOB_TYPE_GENERAL, "late", func() error { return nil }))
	if err := late.Wait(); !errors.Is(err, core.ErrJobSystemShutdown) {
		t.Fatalf("late.Wait:\nhave %v\nwant %v", err, core.ErrJobSystemShutdown)
	}
}
