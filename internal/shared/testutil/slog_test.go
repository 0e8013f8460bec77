package testutil

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	logger, handler := NewTestLogger(t)

	logger.Info("plain", slog.String("k", "v"))
	logger.With(slog.String("component", "queue")).Warn("derived")

	assert.Equal(t, 2, handler.Count())
	assert.True(t, handler.ContainsMessage("derived"))
	assert.True(t, handler.ContainsAttr("component", "queue"))
	AssertLogContains(t, handler, slog.LevelWarn, "derived")
	AssertLogAttr(t, handler, "k", "v")

	warn := handler.GetRecordsByLevel(slog.LevelWarn)
	assert.Len(t, warn, 1)
	assert.Equal(t, "queue", warn[0].Attrs["component"])
}

func TestBufferedSlogHandlerConcurrent(t *testing.T) {
	logger, handler := NewTestLogger(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("tick")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, handler.Count())
}

func TestFakeClock(t *testing.T) {
	c := NewFakeClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())

	got := c.Advance(Days(2))
	assert.Equal(t, Epoch.Add(48*time.Hour), got)

	target := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	assert.Equal(t, target, c.Now())
}
