// Package gate decides at run time whether caches may be read and written.
//
// A [Source] reports two signals asynchronously. [Resolve] turns them into a
// [Posture], which callers fold into the per-call access flags:
//
//	p, _ := gate.Resolve(ctx, src).Await(ctx)
//	v := acc.Get(ctx, key, loader, p.Flags(bypass))
//
// A signal that cannot be obtained counts as disabled.
package gate

import (
	"context"
	"sync"

	"github.com/Keksclan/goRawrStash/access"
	"github.com/Keksclan/goRawrStash/future"
)

// Source reports whether cache reads and writes are currently allowed.
type Source interface {
	ReadEnabled(ctx context.Context) *future.Future[bool]
	WriteEnabled(ctx context.Context) *future.Future[bool]
}

// Posture is a resolved pair of signals.
type Posture struct {
	ReadEnabled  bool
	WriteEnabled bool
}

// Open allows everything.
var Open = Posture{ReadEnabled: true, WriteEnabled: true}

// Flags combines the posture with a caller's own bypass request. Reads are
// skipped when the caller asks or reads are disabled; writes are skipped
// when writes are disabled.
func (p Posture) Flags(skipCache bool) access.Flags {
	return access.Flags{
		SkipCache: skipCache || !p.ReadEnabled,
		SkipWrite: !p.WriteEnabled,
	}
}

// Resolve queries both signals of src. The result never fails: a signal
// that fails or panics resolves to false.
func Resolve(ctx context.Context, src Source) *future.Future[Posture] {
	read := signal(ctx, src.ReadEnabled)
	write := signal(ctx, src.WriteEnabled)

	out := future.New[Posture]()
	read.OnComplete(func(r bool, _ error) {
		write.OnComplete(func(w bool, _ error) {
			out.Resolve(Posture{ReadEnabled: r, WriteEnabled: w})
		})
	})
	return out
}

// signal calls fn and maps every failure to a false result.
func signal(ctx context.Context, fn func(context.Context) *future.Future[bool]) (f *future.Future[bool]) {
	defer func() {
		if r := recover(); r != nil {
			f = future.Resolved(false)
		}
	}()
	f = fn(ctx)
	if f == nil {
		return future.Resolved(false)
	}
	return future.Recover(f, func(error) (bool, error) { return false, nil })
}

// All enables a signal only when every source enables it. A failing source
// fails the combined signal.
func All(sources ...Source) Source {
	return all(sources)
}

type all []Source

func (a all) ReadEnabled(ctx context.Context) *future.Future[bool] {
	return a.and(ctx, Source.ReadEnabled)
}

func (a all) WriteEnabled(ctx context.Context) *future.Future[bool] {
	return a.and(ctx, Source.WriteEnabled)
}

func (a all) and(ctx context.Context, get func(Source, context.Context) *future.Future[bool]) *future.Future[bool] {
	out := future.New[bool]()
	if len(a) == 0 {
		out.Resolve(true)
		return out
	}

	var (
		mu      sync.Mutex
		pending = len(a)
	)
	for _, src := range a {
		get(src, ctx).OnComplete(func(ok bool, err error) {
			switch {
			case err != nil:
				out.Fail(err)
			case !ok:
				out.Resolve(false)
			}
			mu.Lock()
			pending--
			last := pending == 0
			mu.Unlock()
			if last {
				out.Resolve(true)
			}
		})
	}
	return out
}
