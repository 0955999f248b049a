package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := generateCode()
		require.Len(t, code, codeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, c), "unexpected character %q in %s", c, code)
		}
	}
}

func TestCreateRoomUniqueCodes(t *testing.T) {
	rm := NewRoomManager()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		room := rm.CreateRoom("host")
		require.False(t, seen[room.Code])
		seen[room.Code] = true
	}
	assert.Equal(t, 100, rm.Count())
}

func TestGetAndDeleteRoom(t *testing.T) {
	rm := NewRoomManager()
	room := rm.CreateRoom("host")

	got, ok := rm.GetRoom(room.Code)
	require.True(t, ok)
	assert.Same(t, room, got)
	assert.Equal(t, "host", got.HostID)

	rm.DeleteRoom(room.Code)
	_, ok = rm.GetRoom(room.Code)
	assert.False(t, ok)
	assert.Zero(t, rm.Count())

	// Lookups never invent rooms.
	_, ok = rm.GetRoom("ZZZZZZ")
	assert.False(t, ok)
}
