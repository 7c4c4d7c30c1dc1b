// Package catalog is the read-only vehicle dataset: the base list the
// browsing UI filters, and the identity source the enrichment store
// resolves ids against.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hazyhaar/carcatalog/filters"
	"github.com/hazyhaar/carcatalog/slug"
)

//go:embed data/cars.json
var defaultDataset []byte

// ErrInvalidDataset is returned when the dataset cannot be loaded.
var ErrInvalidDataset = errors.New("catalog: invalid dataset")

// Vehicle is one entry of the local dataset.
type Vehicle struct {
	ID       int    `json:"id"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	BodyType string `json:"bodyType,omitempty"`
	FuelType string `json:"fuelType,omitempty"`
}

// Slug returns the URL token for v.
func (v Vehicle) Slug() string {
	return slug.Encode(v.Make, v.Model, v.Year)
}

// Repository holds the dataset in memory. It is immutable after Load and
// safe for concurrent use.
type Repository struct {
	vehicles []Vehicle
	byID     map[int]int
	bySlug   map[string]int
}

// Load parses a JSON array of vehicles. Ids must be unique and make,
// model and year must be set.
func Load(data []byte) (*Repository, error) {
	var vehicles []Vehicle
	if err := json.Unmarshal(data, &vehicles); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}

	r := &Repository{
		vehicles: vehicles,
		byID:     make(map[int]int, len(vehicles)),
		bySlug:   make(map[string]int, len(vehicles)),
	}
	for i, v := range vehicles {
		if strings.TrimSpace(v.Make) == "" || strings.TrimSpace(v.Model) == "" || v.Year == 0 {
			return nil, fmt.Errorf("%w: vehicle %d: make, model and year are required", ErrInvalidDataset, v.ID)
		}
		if _, dup := r.byID[v.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidDataset, v.ID)
		}
		r.byID[v.ID] = i
		// First vehicle wins on slug collisions.
		if _, taken := r.bySlug[v.Slug()]; !taken {
			r.bySlug[v.Slug()] = i
		}
	}
	return r, nil
}

// LoadFile reads and parses the dataset at path.
func LoadFile(path string) (*Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Load(data)
}

// Default returns the dataset embedded in the binary.
func Default() (*Repository, error) {
	return Load(defaultDataset)
}

// List returns every vehicle in dataset order.
func (r *Repository) List() []Vehicle {
	out := make([]Vehicle, len(r.vehicles))
	copy(out, r.vehicles)
	return out
}

// Len returns the number of vehicles.
func (r *Repository) Len() int {
	return len(r.vehicles)
}

// Get returns the vehicle with the given id.
func (r *Repository) Get(id int) (Vehicle, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Vehicle{}, false
	}
	return r.vehicles[i], true
}

// GetBySlug returns the vehicle whose slug equals s.
func (r *Repository) GetBySlug(s string) (Vehicle, bool) {
	i, ok := r.bySlug[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Vehicle{}, false
	}
	return r.vehicles[i], true
}

// Filter returns the vehicles matching st, in dataset order.
func (r *Repository) Filter(st filters.State) []Vehicle {
	out := make([]Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		if st.Match(v.Make, v.Model, v.Year) {
			out = append(out, v)
		}
	}
	return out
}

// Makes returns the distinct makes, sorted.
func (r *Repository) Makes() []string {
	seen := make(map[string]bool)
	var makes []string
	for _, v := range r.vehicles {
		if !seen[v.Make] {
			seen[v.Make] = true
			makes = append(makes, v.Make)
		}
	}
	sort.Strings(makes)
	return makes
}
