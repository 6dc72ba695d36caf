package sensing

import (
	"testing"

	"go.viam.com/test"
)

func TestHandleTable(t *testing.T) {
	var table handleTable
	a, b := &session{}, &session{}

	ha := table.alloc(a)
	hb := table.alloc(b)
	test.That(t, ha, test.ShouldNotEqual, Handle(0))
	test.That(t, ha, test.ShouldNotEqual, hb)

	got, ok := table.get(ha)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, a)
	test.That(t, table.live(), test.ShouldHaveLength, 2)

	_, ok = table.get(0)
	test.That(t, ok, test.ShouldBeFalse)

	released, ok := table.release(ha)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, released, test.ShouldEqual, a)
	_, ok = table.release(ha)
	test.That(t, ok, test.ShouldBeFalse)

	// The freed slot is reused under a new generation; the stale handle stays dead.
	c := &session{}
	hc := table.alloc(c)
	test.That(t, hc.index(), test.ShouldEqual, ha.index())
	test.That(t, hc, test.ShouldNotEqual, ha)
	_, ok = table.get(ha)
	test.That(t, ok, test.ShouldBeFalse)
	got, ok = table.get(hc)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, c)

	_, ok = table.get(newHandle(1, 99))
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, table.live(), test.ShouldResemble, []Handle{hc, hb})
}

func TestHandleGenerationWrap(t *testing.T) {
	var table handleTable
	h := table.alloc(&session{})
	table.slots[h.index()].gen = ^uint32(0)
	h = newHandle(^uint32(0), h.index())

	_, ok := table.release(h)
	test.That(t, ok, test.ShouldBeTrue)
	next := table.alloc(&session{})
	test.That(t, next.gen(), test.ShouldEqual, uint32(1))
	test.That(t, next, test.ShouldNotEqual, Handle(0))
}
