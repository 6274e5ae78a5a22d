package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSearchKey_FoldsQuery(t *testing.T) {
	assert.Equal(t, "search:cafe", SearchKey("Café"))
	assert.Equal(t, SearchKey("cafe"), SearchKey(" CAFÉ "))
	assert.NotEqual(t, SearchKey("sea"), SearchKey("seat"))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("not a redis url", time.Minute)
	assert.Error(t, err)
}

func TestOpensWindow(t *testing.T) {
	tests := []struct {
		name  string
		count int64
		ttl   time.Duration
		want  bool
	}{
		{"first hit", 1, -1, true},
		{"later hit keeps window", 5, 20 * time.Second, false},
		{"later hit without expiry", 5, -1, true},
		{"missing key", 3, -2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, opensWindow(tt.count, tt.ttl))
		})
	}
}
