package embeddb

import (
	"errors"
	"testing"
	"time"
)

func TestSerializer_RunsTasksInFIFOOrder(t *testing.T) {
	s := newSerializer()

	var order []int
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			_, _ = submit(s, func() (struct{}, error) {
				order = append(order, i)
				return struct{}{}, nil
			})
			done <- struct{}{}
		}()
		// the worker is still paused, so wait until task i is queued before
		// submitting the next one; that fixes the submission order
		for len(s.tasks) != i+1 {
			time.Sleep(time.Millisecond)
		}
	}
	s.markReady(nil)
	for i := 0; i < 3; i++ {
		<-done
	}
	if len(order) != 3 {
		t.Fatalf("ran %d tasks, wanted 3", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran in order %v, wanted submission order [0 1 2]", order)
		}
	}
}

func TestSerializer_TasksBlockUntilReady(t *testing.T) {
	s := newSerializer()
	resultCh := make(chan int, 1)
	go func() {
		v, _ := submit(s, func() (int, error) { return 42, nil })
		resultCh <- v
	}()

	select {
	case <-resultCh:
		t.Fatalf("task ran before markReady was called")
	default:
	}

	s.markReady(nil)
	if v := <-resultCh; v != 42 {
		t.Fatalf("task result = %d, wanted 42", v)
	}
}

func TestSerializer_LoadErrorFailsQueuedTasks(t *testing.T) {
	s := newSerializer()
	loadErr := errors.New("boom")

	resultCh := make(chan error, 1)
	go func() {
		_, err := submit(s, func() (struct{}, error) { return struct{}{}, nil })
		resultCh <- err
	}()
	s.markReady(loadErr)

	if err := <-resultCh; !errors.Is(err, loadErr) {
		t.Fatalf("submit error = %v, wanted %v", err, loadErr)
	}
}

func TestSerializer_PanicIsRecoveredAsError(t *testing.T) {
	s := newSerializer()
	s.markReady(nil)
	_, err := submit(s, func() (struct{}, error) {
		panic("kaboom")
	})
	if err == nil {
		t.Fatalf("submit returned nil error after a panicking task")
	}
}

func TestSerializer_CloseRejectsNewTasks(t *testing.T) {
	s := newSerializer()
	s.markReady(nil)
	s.Close()
	_, err := submit(s, func() (struct{}, error) { return struct{}{}, nil })
	if !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("submit after Close = %v, wanted ErrStoreClosed", err)
	}
}

func TestSerializer_CloseBeforeReadyFailsQueuedTasks(t *testing.T) {
	s := newSerializer()
	resultCh := make(chan error, 1)
	go func() {
		_, err := submit(s, func() (struct{}, error) { return struct{}{}, nil })
		resultCh <- err
	}()
	s.Close()
	if err := <-resultCh; !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("task queued before ready, closed before load finished = %v, wanted ErrStoreClosed", err)
	}
}

func TestSerializer_Wait(t *testing.T) {
	s := newSerializer()
	s.markReady(nil)
	var ran bool
	_, _ = submit(s, func() (struct{}, error) {
		ran = true
		return struct{}{}, nil
	})
	s.Wait()
	if !ran {
		t.Fatalf("task did not run before Wait returned")
	}
}
