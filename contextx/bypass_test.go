package contextx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBypassRoundTrip(t *testing.T) {
	ctx := WithBypass(context.Background(), Bypass{Read: true})
	assert.Equal(t, Bypass{Read: true}, BypassFromContext(ctx))
}

func TestBypassMissing(t *testing.T) {
	assert.Zero(t, BypassFromContext(context.Background()))
}
