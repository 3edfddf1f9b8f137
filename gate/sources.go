package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/Keksclan/goRawrStash/contextx"
	"github.com/Keksclan/goRawrStash/future"
)

// Static returns a source with fixed signals.
func Static(p Posture) Source { return static{p: p} }

type static struct {
	p Posture
}

func (s static) ReadEnabled(context.Context) *future.Future[bool] {
	return future.Resolved(s.p.ReadEnabled)
}

func (s static) WriteEnabled(context.Context) *future.Future[bool] {
	return future.Resolved(s.p.WriteEnabled)
}

// Switch is a source toggled at run time, for example from an admin
// endpoint. The zero value has both signals disabled; use [NewSwitch] for
// an open one. Safe for concurrent use.
type Switch struct {
	read  atomic.Bool
	write atomic.Bool
}

// NewSwitch returns a Switch with both signals enabled.
func NewSwitch() *Switch {
	s := &Switch{}
	s.read.Store(true)
	s.write.Store(true)
	return s
}

// SetRead enables or disables cache reads.
func (s *Switch) SetRead(enabled bool) { s.read.Store(enabled) }

// SetWrite enables or disables cache writes.
func (s *Switch) SetWrite(enabled bool) { s.write.Store(enabled) }

func (s *Switch) ReadEnabled(context.Context) *future.Future[bool] {
	return future.Resolved(s.read.Load())
}

func (s *Switch) WriteEnabled(context.Context) *future.Future[bool] {
	return future.Resolved(s.write.Load())
}

// Configuration keys read by [FromConfig].
const (
	KeyReadEnabled  = "caching-gate.read-enabled"
	KeyWriteEnabled = "caching-gate.write-enabled"
)

// FromConfig reads the signals from v on every call, so changes picked up
// by viper (a watched file, an env var) apply immediately. Unset keys are
// enabled; values that are not booleans fail the signal.
func FromConfig(v *viper.Viper) Source { return configSource{v: v} }

type configSource struct {
	v *viper.Viper
}

func (c configSource) ReadEnabled(context.Context) *future.Future[bool] {
	return c.flag(KeyReadEnabled)
}

func (c configSource) WriteEnabled(context.Context) *future.Future[bool] {
	return c.flag(KeyWriteEnabled)
}

func (c configSource) flag(key string) *future.Future[bool] {
	if !c.v.IsSet(key) {
		return future.Resolved(true)
	}
	b, err := cast.ToBoolE(c.v.Get(key))
	if err != nil {
		return future.Failed[bool](fmt.Errorf("gate: %s: %w", key, err))
	}
	return future.Resolved(b)
}

// FromContext disables the signals a request opted out of with
// [contextx.WithBypass]. Combine it with other sources using [All].
func FromContext() Source { return contextSource{} }

type contextSource struct{}

func (contextSource) ReadEnabled(ctx context.Context) *future.Future[bool] {
	return future.Resolved(!contextx.BypassFromContext(ctx).Read)
}

func (contextSource) WriteEnabled(ctx context.Context) *future.Future[bool] {
	return future.Resolved(!contextx.BypassFromContext(ctx).Write)
}
