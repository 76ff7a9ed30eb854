package plans

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSource loads plans from a YAML document, letting operators adjust the
// catalog without a rebuild. Expected shape:
//
//	plans:
//	  - id: free
//	    name: Free
//	    default: true
//	    quotas:
//	      workouts: 10
//	  - id: pro
//	    name: Pro
//	    price_cents: 4999
//	    trial_days: 14
//	    quotas:
//	      workouts: -1
//	    features: [coaching_cues, nutrition]
type fileSource struct {
	path string
}

// NewFileSource returns a Source reading the YAML catalog at path. The file
// is re-read on every Load, so a catalog reload is just re-creating the
// consumer.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

func (s *fileSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	out := make(map[string]Plan, len(doc.Plans))
	for _, plan := range doc.Plans {
		if plan.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("plan without id"))
		}
		if _, exists := out[plan.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan id %s", plan.ID))
		}
		out[plan.ID] = plan
	}
	return out, nil
}
