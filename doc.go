// Package storekit is a thin facade over a remote key-value store and a
// distributed lock service.
//
// Components:
//   - Cache[V]: typed access to scalar, hash, list, set and sorted-set entries
//     plus key lifecycle (exists, delete, expire, TTL), over a provider.Store
//     (Redis or the in-process ristretto store).
//   - Codec[V]: (de)serializes V <-> []byte (JSON, Msgpack, CBOR, Protobuf, raw).
//   - Locker / Lock: named, re-entrant, leased locks over a
//     coordinator.Coordinator (Redis or in-process).
//
// Error containment:
//
//	reads  (Exists, GetValue, GetField, Range, Members, Score, ...) fail open:
//	       the zero value is returned, the error is logged and sent to Hooks.
//	writes (SetValue, Increment, PushLeft, Delete, Expire, ...) fail closed:
//	       an *OpError carrying the operation and key is returned.
//
// A read that returns the zero value therefore means "absent or failed"; use
// Hooks to observe failures. TimeToLive is the exception and reports which
// case applied through TTL.State.
//
// Locks:
//
//	lk := locker.GetLock("invoice:42")
//	ok, err := lk.Acquire(ctx, 5*time.Second, 0) // wait up to 5s, watchdog-renewed lease
//	if err != nil || !ok {
//	    return err
//	}
//	defer lk.Release(ctx)
package storekit
