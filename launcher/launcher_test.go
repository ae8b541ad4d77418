package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveSessionSlot(t *testing.T) {
	m := &Manager{}

	_, ok := m.ActiveSession()
	assert.False(t, ok)

	m.SetActiveSession(7)
	id, ok := m.ActiveSession()
	assert.True(t, ok)
	assert.Equal(t, int32(7), id)

	// A session that never owned the slot cannot clear it.
	m.ClearActiveSession(3)
	id, ok = m.ActiveSession()
	assert.True(t, ok)
	assert.Equal(t, int32(7), id)

	// A newcomer takes the slot over; the old owner's exit must not knock
	// the newcomer out.
	m.SetActiveSession(9)
	m.ClearActiveSession(7)
	id, ok = m.ActiveSession()
	assert.True(t, ok)
	assert.Equal(t, int32(9), id)

	m.ClearActiveSession(9)
	_, ok = m.ActiveSession()
	assert.False(t, ok)
}
