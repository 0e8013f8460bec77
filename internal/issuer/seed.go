package issuer

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"licensegate/internal/license"
)

// SeedFile is the YAML document the development server loads at startup
type SeedFile struct {
	Licenses []*license.License `yaml:"licenses"`
}

// LoadSeedFile reads and normalises the licenses listed in the YAML file at path
func LoadSeedFile(path string) ([]*license.License, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document. Keys are normalised, ids generated when
// missing, status defaults to pending and max activations to one.
func ParseSeed(data []byte) ([]*license.License, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Licenses))
	for i, l := range seed.Licenses {
		if l == nil {
			return nil, fmt.Errorf("seed license %d is empty", i)
		}
		key, err := license.ParseKey(l.Key)
		if err != nil {
			return nil, fmt.Errorf("seed license %d: %w", i, err)
		}
		if seen[key] {
			return nil, fmt.Errorf("seed license %d: duplicate key %s", i, license.MaskKey(key))
		}
		seen[key] = true
		l.Key = key

		if !l.Type.Valid() {
			return nil, fmt.Errorf("seed license %s: unknown type %q", license.MaskKey(key), l.Type)
		}
		if l.Status == "" {
			l.Status = license.StatusPending
		}
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.MaxActivations <= 0 {
			l.MaxActivations = 1
		}
	}
	return seed.Licenses, nil
}
