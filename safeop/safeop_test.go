package safeop

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDo(t *testing.T) {
	assert.True(t, Do(nil, "noop", func() error { return nil }))
	assert.False(t, Do(nil, "fails", func() error { return errors.New("boom") }))
	assert.False(t, Do(nil, "panics", func() error { panic("boom") }))
}

func TestDoValue(t *testing.T) {
	v, ok := DoValue(nil, "value", func() (int, error) { return 42, nil })
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	v, ok = DoValue(nil, "fails", func() (int, error) { return 7, errors.New("boom") })
	assert.False(t, ok)
	assert.Zero(t, v)

	s, ok := DoValue(nil, "panics", func() (string, error) { panic("boom") })
	assert.False(t, ok)
	assert.Empty(t, s)
}

func TestGo(t *testing.T) {
	done := make(chan struct{})
	Go(nil, "runs", func() { close(done) })
	<-done

	var wg sync.WaitGroup
	wg.Add(1)
	Go(nil, "panics", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()
}
