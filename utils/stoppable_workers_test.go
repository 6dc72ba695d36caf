package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var count atomic.Int32
	workers := NewStoppableWorkers(func(ctx context.Context) {
		count.Add(1)
		<-ctx.Done()
	})
	test.That(t, workers.AddWorkers(func(ctx context.Context) {
		count.Add(1)
		<-ctx.Done()
	}), test.ShouldBeTrue)

	workers.Stop()
	test.That(t, count.Load(), test.ShouldEqual, 2)
	test.That(t, workers.Context().Err(), test.ShouldNotBeNil)

	// Workers added after Stop are never started.
	test.That(t, workers.AddWorkers(func(ctx context.Context) { count.Add(1) }), test.ShouldBeFalse)
	test.That(t, count.Load(), test.ShouldEqual, 2)
}

func TestStopWithContext(t *testing.T) {
	release := make(chan struct{})
	workers := NewStoppableWorkers(func(ctx context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := workers.StopWithContext(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timed out")

	close(release)
	test.That(t, workers.StopWithContext(context.Background()), test.ShouldBeNil)
}

func TestGuard(t *testing.T) {
	cleaned := 0
	func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
	}()
	test.That(t, cleaned, test.ShouldEqual, 1)

	func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
		guard.Success()
	}()
	test.That(t, cleaned, test.ShouldEqual, 1)
}

func TestErrors(t *testing.T) {
	err := NewUnexpectedTypeError[string](3)
	test.That(t, err.Error(), test.ShouldEqual, "expected string but got int")

	err = NewUnimplementedInterfaceError("driver.SensitivityTester", 3)
	test.That(t, err.Error(), test.ShouldEqual, "expected implementation of driver.SensitivityTester but got int")
}
