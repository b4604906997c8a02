package util

import (
	"errors"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestEvent(t *testing.T) {
	e := NewEvent()
	test.That(t, e.HasBeenNotified(), test.ShouldBeFalse)
	test.That(t, e.Err(), test.ShouldBeNil)

	waited := make(chan error)
	go func() { waited <- e.Wait() }()

	first := errors.New("first")
	e.Notify(first)
	e.Notify(errors.New("second"))

	select {
	case err := <-waited:
		test.That(t, err, test.ShouldEqual, first)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
	<-e.Done()
	test.That(t, e.HasBeenNotified(), test.ShouldBeTrue)
	test.That(t, e.Err(), test.ShouldEqual, first)
}

func TestEventNilError(t *testing.T) {
	e := NewEvent()
	e.Notify(nil)
	test.That(t, e.Wait(), test.ShouldBeNil)
	e.Notify(errors.New("late"))
	test.That(t, e.Wait(), test.ShouldBeNil)
}
