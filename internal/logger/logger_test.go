package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// captureOutput redirects the logger into a buffer for one test.
func captureOutput(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	InitWithWriter(buf, level, format, false)
	t.Cleanup(func() { InitWithWriter(&bytes.Buffer{}, "INFO", "text", false) })
	return buf
}

func TestLevels(t *testing.T) {
	t.Run("DebugSuppressedAtInfo", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		Debug("hidden")
		Info("shown")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "shown")
	})

	t.Run("LevelChangeTakesEffect", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		Debug("before")
		SetLevel("DEBUG")
		Debug("after")

		out := buf.String()
		assert.NotContains(t, out, "before")
		assert.Contains(t, out, "after")
	})

	t.Run("InvalidLevelIsIgnored", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		SetLevel("SHOUTING")
		Info("still works")
		assert.Contains(t, buf.String(), "still works")
	})
}

func TestStructuredFields(t *testing.T) {
	t.Run("TextFormatRendersKeyValuePairs", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		Info("request served", KeyProcedure, "OPEN", KeyHandle, 3)

		out := buf.String()
		assert.Contains(t, out, "request served")
		assert.Contains(t, out, "procedure=OPEN")
		assert.Contains(t, out, "handle=3")
	})

	t.Run("JSONFormatIsStructured", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "json")
		Info("served", KeyProcedure, "READ")

		out := buf.String()
		assert.Contains(t, out, `"procedure":"READ"`)
		assert.True(t, strings.HasPrefix(out, "{"))
	})

	t.Run("WithBindsFields", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		log := With(KeyConnID, "abc123")
		log.Info("bound")

		assert.Contains(t, buf.String(), "conn_id=abc123")
	})
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t, "INFO", "text")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent line")
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.Contains(t, line, "concurrent line")
	}
}
