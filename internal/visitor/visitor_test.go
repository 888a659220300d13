package visitor

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/db/models"
)

func TestNormalizeIP(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{"empty defaults to loopback", "", "127.0.0.1"},
		{"ipv6 localhost", "::1", "127.0.0.1"},
		{"plain address", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain takes first hop", "203.0.113.7, 10.0.0.1, 10.0.0.2", "203.0.113.7"},
		{"chain with spaces", " 203.0.113.7 ,10.0.0.1", "203.0.113.7"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeIP(tc.raw))
		})
	}
}

func TestDevice(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, UnknownDevice, Device(""))
	})

	t.Run("desktop chrome", func(t *testing.T) {
		got := Device("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		assert.Contains(t, got, "Windows")
		assert.Contains(t, got, "Chrome")
		assert.Contains(t, got, " - ")
	})

	t.Run("iphone safari", func(t *testing.T) {
		got := Device("Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1")
		assert.Contains(t, got, "iPhone")
		assert.Contains(t, got, "Safari")
	})
}

func TestLocationWithoutDatabase(t *testing.T) {
	r, err := NewResolver("")
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, UnknownLocation, r.Location("203.0.113.7"))
	assert.Equal(t, UnknownLocation, r.Location("not-an-ip"))
}

func TestNewResolverBadPath(t *testing.T) {
	_, err := NewResolver("/does/not/exist.mmdb")
	assert.Error(t, err)
}

func TestTrack(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.AutoMigrate(&models.Visitor{}))

	r, err := NewResolver("")
	require.NoError(t, err)
	defer r.Close()

	r.Track(db, "::1", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	var visits []models.Visitor
	require.NoError(t, db.Find(&visits).Error)
	require.Len(t, visits, 1)
	assert.Equal(t, "127.0.0.1", visits[0].IP)
	assert.Equal(t, UnknownLocation, visits[0].Location)
	assert.Contains(t, visits[0].Device, "Chrome")
	assert.False(t, visits[0].Timestamp.IsZero())
}
