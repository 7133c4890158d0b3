package worker

import (
	"sync"
	"testing"
	"time"
)

func TestFactoryCapsLiveWorkers(t *testing.T) {
	f := NewFactory(2)

	block := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	done1 := f.Submit(func() { started.Done(); <-block })
	done2 := f.Submit(func() { started.Done(); <-block })
	started.Wait()

	_, _, live := f.Stats()
	if live != 2 {
		t.Fatalf("live workers = %d, want 2", live)
	}

	// A third Submit must block acquiring a worker rather than spawning
	// past maxWorkers, since both live workers are still busy.
	thirdAcquired := make(chan struct{})
	go func() {
		<-f.Submit(func() { close(thirdAcquired) })
	}()

	select {
	case <-thirdAcquired:
		t.Fatal("third job ran before any worker was released, maxWorkers was not enforced")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done1
	<-done2

	select {
	case <-thirdAcquired:
	case <-time.After(time.Second):
		t.Fatal("third job never ran after a worker was released")
	}

	_, _, live = f.Stats()
	if live > 2 {
		t.Errorf("live workers = %d, want <= 2", live)
	}
}

func TestFactoryReusesIdleWorker(t *testing.T) {
	f := NewFactory(4)
	<-f.Submit(func() {})
	<-f.Submit(func() {})

	_, _, live := f.Stats()
	if live != 1 {
		t.Errorf("live workers after two sequential jobs = %d, want 1 (idle worker reused)", live)
	}
}
