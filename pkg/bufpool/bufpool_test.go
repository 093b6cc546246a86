package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Run("ReturnsExactLength", func(t *testing.T) {
		for _, size := range []int{0, 1, SmallSize, SmallSize + 1, MediumSize, LargeSize} {
			buf := Get(size)
			assert.Len(t, buf, size)
			Put(buf)
		}
	})

	t.Run("OversizedRequestsAllocateDirectly", func(t *testing.T) {
		buf := Get(LargeSize + 1)
		assert.Len(t, buf, LargeSize+1)
		Put(buf) // dropped, not pooled
	})

	t.Run("GetUint32MatchesGet", func(t *testing.T) {
		buf := GetUint32(512)
		assert.Len(t, buf, 512)
		Put(buf)
	})
}

func TestReuse(t *testing.T) {
	// After a tier-sized buffer is returned, a smaller request in that tier
	// still gets the tier's full capacity, whether reused or freshly allocated.
	first := Get(SmallSize)
	first[0] = 0xAA
	Put(first)

	second := Get(16)
	assert.Equal(t, SmallSize, cap(second))
	Put(second)
}
