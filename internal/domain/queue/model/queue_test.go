package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeScore(t *testing.T) {
	t.Run("Earlier arrival scores higher within a tier", func(t *testing.T) {
		base := time.Now()
		early := ComputeScore(base, 0)
		late := ComputeScore(base.Add(time.Second), 0)
		assert.Greater(t, early, late)
	})

	t.Run("Tier offset advances arrival ordinal by its millisecond value", func(t *testing.T) {
		base := time.Now()
		boosted := ComputeScore(base, 60000)
		plain := ComputeScore(base.Add(-time.Minute), 0)
		assert.Equal(t, plain, boosted, "60s offset equals arriving 60s earlier")
	})

	t.Run("Offset bounds starvation for lower tiers", func(t *testing.T) {
		// 积压超过偏移量的普通条目最终会反超加急条目
		appeal := ComputeScore(time.Now(), 300000)
		backlogged := ComputeScore(time.Now().Add(-6*time.Minute), 0)
		assert.Greater(t, backlogged, appeal)
	})
}
