package safeop

import (
	"github.com/apepenkov/yalog"
)

// Do runs fn and reports whether it completed. Errors and panics are
// logged and swallowed, so callers can treat the operation as best-effort.
func Do(logger *yalog.Logger, op string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			errorf(logger, "%s panicked: %v\n", op, r)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		errorf(logger, "%s: %v\n", op, err)
		return false
	}
	return true
}

// DoValue is Do for operations that produce a value. On error or panic the
// zero value is returned together with ok == false.
func DoValue[T any](logger *yalog.Logger, op string, fn func() (T, error)) (val T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			errorf(logger, "%s panicked: %v\n", op, r)
			var zero T
			val, ok = zero, false
		}
	}()
	v, err := fn()
	if err != nil {
		errorf(logger, "%s: %v\n", op, err)
		var zero T
		return zero, false
	}
	return v, true
}

// Go runs fn in a goroutine that cannot crash the program.
func Go(logger *yalog.Logger, op string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errorf(logger, "%s panicked: %v\n", op, r)
			}
		}()
		fn()
	}()
}

func errorf(logger *yalog.Logger, format string, args ...interface{}) {
	if logger == nil {
		return
	}
	logger.Errorf(format, args...)
}
