package cruise

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonlinearLatAccel(t *testing.T) {
	t.Parallel()

	t.Run("monotonic and capped", func(t *testing.T) {
		t.Parallel()
		prev := NonlinearLatAccel(0, 1.0)
		for v := 2.0; v <= 45; v += 2 {
			cur := NonlinearLatAccel(v, 1.0)
			assert.GreaterOrEqual(t, cur, prev, "v=%v", v)
			assert.LessOrEqual(t, cur, 3.2, "v=%v", v)
			prev = cur
		}
	})

	t.Run("aggressiveness scales linearly", func(t *testing.T) {
		t.Parallel()
		base := NonlinearLatAccel(20, 1.0)
		assert.InDelta(t, base*1.5, NonlinearLatAccel(20, 1.5), 1e-9)
	})
}

func TestVisionTurnSpeedController(t *testing.T) {
	t.Parallel()

	t.Run("inactive passes cruise through", func(t *testing.T) {
		t.Parallel()
		c := NewVisionTurnSpeedController(DefaultCruiseFloor, 0.05)
		got := c.Update(false, 25, 30, 0.01, 500, 0, 1.0)
		assert.Equal(t, 30.0, got)
		assert.Equal(t, 0.0, c.CurrentDecel())
	})

	t.Run("straight road passes cruise through", func(t *testing.T) {
		t.Parallel()
		c := NewVisionTurnSpeedController(DefaultCruiseFloor, 0.05)
		got := c.Update(true, 25, 30, 0, 500, 0, 1.0)
		assert.Equal(t, 30.0, got)
	})

	t.Run("curve lowers the target", func(t *testing.T) {
		t.Parallel()
		c := NewVisionTurnSpeedController(DefaultCruiseFloor, 0.05)
		got := c.Update(true, 30, 30, 0.01, 500, 0, 1.0)
		assert.Less(t, got, 30.0)
		assert.GreaterOrEqual(t, got, 0.0)
	})

	t.Run("deceleration ramps under the jerk limit", func(t *testing.T) {
		t.Parallel()
		c := NewVisionTurnSpeedController(DefaultCruiseFloor, 0.05)
		prevDecel := 0.0
		for i := 0; i < 20; i++ {
			c.Update(true, 30, 30, 0.01, 500, 0, 1.0)
			step := c.CurrentDecel() - prevDecel
			assert.LessOrEqual(t, step, vtscMaxJerk*0.05+1e-9, "tick %d", i)
			prevDecel = c.CurrentDecel()
		}
		assert.LessOrEqual(t, c.CurrentDecel(), vtscMaxDecel)
	})

	t.Run("upcoming curve pre-slows on a straight", func(t *testing.T) {
		t.Parallel()
		c := NewVisionTurnSpeedController(DefaultCruiseFloor, 0.05)
		// Mild present curvature, sharp curve 50 m ahead.
		got := c.Update(true, 25, 25, 1e-6, 50, 0.01, 1.0)
		assert.Less(t, got, 25.0)
	})
}
