package id

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionIDPrefix(t *testing.T) {
	sid := NewSessionID()
	assert.True(t, strings.HasPrefix(sid.String(), "term_"))
}

func TestNewSessionIDUnique(t *testing.T) {
	seen := make(map[SessionID]bool)
	for i := 0; i < 1000; i++ {
		sid := NewSessionID()
		assert.False(t, seen[sid], "duplicate id %s", sid)
		seen[sid] = true
	}
}

func TestNewSessionIDSortable(t *testing.T) {
	first := NewSessionID().String()
	time.Sleep(2 * time.Millisecond)
	second := NewSessionID().String()

	ids := []string{second, first}
	sort.Strings(ids)
	assert.Equal(t, []string{first, second}, ids)
}
