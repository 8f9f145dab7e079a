package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestInflightWait(t *testing.T) {
	var f inflight
	assert.True(t, isClosed(f.wait()))

	f.add()
	first := f.wait()
	assert.False(t, isClosed(first))

	f.add()
	f.done()
	assert.False(t, isClosed(first))
	f.done()
	assert.True(t, isClosed(first))

	f.add()
	assert.False(t, isClosed(f.wait()))
	assert.True(t, isClosed(first))
	f.done()
	assert.True(t, isClosed(f.wait()))
}
