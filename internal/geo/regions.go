package geo

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Region is a named circular search area.
type Region struct {
	Name    string  `yaml:"name"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	RadiusM float64 `yaml:"radius"`
}

// DefaultRegions returns the built-in Chicago neighborhoods.
func DefaultRegions() []Region {
	return []Region{
		{Name: "Humboldt Park", Lat: 41.9003, Lng: -87.7233, RadiusM: 1200},
		{Name: "West Town", Lat: 41.8919, Lng: -87.6691, RadiusM: 1200},
		{Name: "Lincoln Park", Lat: 41.9214, Lng: -87.6357, RadiusM: 1400},
		{Name: "Wicker Park", Lat: 41.9084, Lng: -87.6791, RadiusM: 1200},
		{Name: "Logan Square", Lat: 41.9217, Lng: -87.7070, RadiusM: 1400},
		{Name: "Pilsen", Lat: 41.8555, Lng: -87.6629, RadiusM: 1200},
		{Name: "Andersonville", Lat: 41.9788, Lng: -87.6692, RadiusM: 1200},
		{Name: "Lakeview", Lat: 41.9432, Lng: -87.6520, RadiusM: 1300},
		{Name: "Bucktown", Lat: 41.9172, Lng: -87.6874, RadiusM: 1000},
		{Name: "Hyde Park", Lat: 41.7943, Lng: -87.5907, RadiusM: 1200},
		{Name: "Rogers Park", Lat: 42.0085, Lng: -87.6670, RadiusM: 1400},
		{Name: "River North", Lat: 41.8926, Lng: -87.6340, RadiusM: 1000},
		{Name: "Ukrainian Village", Lat: 41.8937, Lng: -87.6869, RadiusM: 1000},
		{Name: "Avondale", Lat: 41.9364, Lng: -87.7072, RadiusM: 1200},
	}
}

type regionFile struct {
	Regions []Region `yaml:"regions"`
}

// LoadRegions reads a YAML region list ({regions: [{name, lat, lng, radius}]}).
// An empty path returns DefaultRegions.
func LoadRegions(path string) ([]Region, error) {
	if path == "" {
		return DefaultRegions(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read regions file %s", path)
	}

	var f regionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "geo: parse regions file %s", path)
	}
	if len(f.Regions) == 0 {
		return nil, eris.Errorf("geo: regions file %s has no regions", path)
	}

	seen := make(map[string]bool, len(f.Regions))
	for i, r := range f.Regions {
		if err := r.validate(); err != nil {
			return nil, eris.Wrapf(err, "geo: region %d", i)
		}
		if seen[r.Name] {
			return nil, eris.Errorf("geo: duplicate region %q", r.Name)
		}
		seen[r.Name] = true
	}

	return f.Regions, nil
}

func (r Region) validate() error {
	switch {
	case r.Name == "":
		return eris.New("name is required")
	case r.Lat < -90 || r.Lat > 90:
		return eris.Errorf("%s: latitude %v out of range", r.Name, r.Lat)
	case r.Lng < -180 || r.Lng > 180:
		return eris.Errorf("%s: longitude %v out of range", r.Name, r.Lng)
	case r.RadiusM <= 0 || r.RadiusM > 50000:
		return eris.Errorf("%s: radius %v must be in (0, 50000]", r.Name, r.RadiusM)
	}
	return nil
}
