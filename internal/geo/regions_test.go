package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegions(t *testing.T) {
	t.Parallel()

	regions := DefaultRegions()
	assert.Len(t, regions, 14)

	seen := make(map[string]bool)
	for _, r := range regions {
		assert.NoError(t, r.validate())
		assert.False(t, seen[r.Name], "duplicate region: %s", r.Name)
		seen[r.Name] = true
	}
	assert.True(t, seen["Logan Square"])
}

func TestLoadRegions_EmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	regions, err := LoadRegions("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRegions(), regions)
}

func TestLoadRegions_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "regions.yaml")
	content := `
regions:
  - name: Mission
    lat: 37.7599
    lng: -122.4148
    radius: 1500
  - name: Williamsburg
    lat: 40.7081
    lng: -73.9571
    radius: 1200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	regions, err := LoadRegions(path)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, Region{Name: "Mission", Lat: 37.7599, Lng: -122.4148, RadiusM: 1500}, regions[0])
	assert.Equal(t, "Williamsburg", regions[1].Name)
}

func TestLoadRegions_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty list", "regions: []\n", "has no regions"},
		{"bad yaml", "regions: [\n", "parse regions file"},
		{"missing name", "regions:\n  - lat: 1\n    lng: 1\n    radius: 10\n", "name is required"},
		{"bad radius", "regions:\n  - name: A\n    lat: 1\n    lng: 1\n    radius: 0\n", "radius"},
		{"bad latitude", "regions:\n  - name: A\n    lat: 91\n    lng: 1\n    radius: 10\n", "latitude"},
		{"duplicate", "regions:\n  - {name: A, lat: 1, lng: 1, radius: 10}\n  - {name: A, lat: 2, lng: 2, radius: 10}\n", "duplicate region"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "regions.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadRegions(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegions_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadRegions(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read regions file")
}
