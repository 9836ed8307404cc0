package storekit

// policy applies the error-containment contract shared by both facades:
// reads fail open, writes fail closed. Nothing is retried.
type policy struct {
	log   Logger
	hooks Hooks
}

func newPolicy(log Logger, hooks Hooks) policy {
	return policy{
		log:   coalesce[Logger](log, NopLogger{}),
		hooks: coalesce[Hooks](hooks, NopHooks{}),
	}
}

// contain records a failed read. The caller returns its zero value.
func (p policy) contain(op, key string, err error) {
	p.log.Warn("read failed, returning zero value", Fields{"op": op, "key": key, "err": err})
	p.hooks.ReadContained(op, key, err)
}

// fail records a failed write and returns the error to hand to the caller.
func (p policy) fail(op, key string, err error) error {
	p.log.Error("write failed", Fields{"op": op, "key": key, "err": err})
	p.hooks.WriteFailed(op, key, err)
	return &OpError{Op: op, Key: key, Err: err}
}

// failOpen returns v, or def after containing err.
func failOpen[T any](p policy, op, key string, v T, err error, def T) T {
	if err != nil {
		p.contain(op, key, err)
		return def
	}
	return v
}
