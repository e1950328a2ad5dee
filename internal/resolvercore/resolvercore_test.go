package resolvercore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsAdCacheEnabled(t *testing.T) {
	ctx := New("1.1.1.1")
	assert.True(t, ctx.AdCacheEnabled())
	assert.Equal(t, "1.1.1.1", ctx.UpstreamIP())
}

func TestSetAdCacheEnabledToggles(t *testing.T) {
	ctx := New("1.1.1.1")
	ctx.SetAdCacheEnabled(false)
	assert.False(t, ctx.AdCacheEnabled())
	ctx.SetAdCacheEnabled(true)
	assert.True(t, ctx.AdCacheEnabled())
}

func TestSetUpstreamIP(t *testing.T) {
	ctx := New("1.1.1.1")
	ctx.SetUpstreamIP("8.8.8.8")
	assert.Equal(t, "8.8.8.8", ctx.UpstreamIP())
}

func TestConcurrentAccessToScalarKnobs(t *testing.T) {
	ctx := New("1.1.1.1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx.SetAdCacheEnabled(true)
		}()
		go func() {
			defer wg.Done()
			_ = ctx.AdCacheEnabled()
		}()
	}
	wg.Wait()
}
