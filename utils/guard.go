package utils

// Guard runs cleanup code for a partially constructed resource when the constructor bails out
// early. The usual shape is:
//
//	guard := NewGuard(func() { drv.Close(ctx) })
//	defer guard.OnFail()
//	if err := drv.SetInterval(ctx, 0); err != nil {
//		return nil, err
//	}
//	guard.Success()
//	return drv, nil
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a Guard that calls onFailCleanup from OnFail unless Success was called first.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success declares the function succeeded and the cleanup does not need to run.
func (guard *Guard) Success() {
	guard.success = true
}
