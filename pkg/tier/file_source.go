package tier

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSource loads tier definitions from a YAML file.
//
// Expected document shape:
//
//	tiers:
//	  momentum:
//	    prices:
//	      monthly: {amount: 1200, currency: USD}
//	      quarterly: {amount: 3200, currency: USD}
//	      yearly: {amount: 11500, currency: USD}
//	    limits:
//	      applications: 10
//	      ai_avatar: 0
//	    features: [cv_tailoring, job_matching]
type fileSource struct {
	path string
}

// NewFileSource returns a Source reading the tier table from the given YAML file.
// The file is read on every Load so a catalog rebuild picks up pricing changes.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

type fileDocument struct {
	Tiers map[Tier]fileTier `yaml:"tiers"`
}

type fileTier struct {
	Prices   map[BillingPeriod]Money `yaml:"prices"`
	Limits   map[Resource]int64      `yaml:"limits"`
	Features []Feature               `yaml:"features"`
}

func (s *fileSource) Load(ctx context.Context) (map[Tier]Definition, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog,
			fmt.Errorf("parse %s: %w", s.path, err))
	}

	defs := make(map[Tier]Definition, len(doc.Tiers))
	for t, ft := range doc.Tiers {
		defs[t] = Definition{
			Name:     t,
			Prices:   ft.Prices,
			Limits:   ft.Limits,
			Features: ft.Features,
		}
	}
	return defs, nil
}
