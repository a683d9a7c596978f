package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePool struct {
	state string
	err   error
}

func (f fakePool) PoolHealth(ctx context.Context, pool string) (string, error) {
	return f.state, f.err
}

func TestPoolCheckerOnline(t *testing.T) {
	c := NewPoolChecker(fakePool{state: "ONLINE"}, "tank")

	res := c.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Contains(t, res.Message, "ONLINE")
	assert.False(t, res.CheckedAt.IsZero())
}

func TestPoolCheckerDegraded(t *testing.T) {
	c := NewPoolChecker(fakePool{state: "DEGRADED"}, "tank")

	res := c.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "DEGRADED")
}

func TestPoolCheckerError(t *testing.T) {
	c := NewPoolChecker(fakePool{err: errors.New("no such pool")}, "tank")

	res := c.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "no such pool")
}

func TestPoolCheckerType(t *testing.T) {
	c := NewPoolChecker(fakePool{state: "ONLINE"}, "tank")
	assert.Equal(t, CheckTypePool, c.Type())
}
