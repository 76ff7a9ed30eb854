package plans_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wodworks/coachkit/pkg/plans"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileSource_Load(t *testing.T) {
	t.Parallel()

	path := writeCatalogFile(t, `
plans:
  - id: free
    name: Free
    default: true
    quotas:
      workouts: 10
  - id: pro
    name: Pro
    price_cents: 4999
    trial_days: 14
    quotas:
      workouts: -1
      coaching_cues: -1
    features: [coaching_cues, nutrition, form_analysis]
`)

	catalog, err := plans.NewCatalog(context.Background(), plans.NewFileSource(path))
	require.NoError(t, err)

	assert.Equal(t, "free", catalog.DefaultPlan().ID)

	pro, err := catalog.Plan("pro")
	require.NoError(t, err)
	assert.EqualValues(t, 4999, pro.PriceCents)
	assert.Equal(t, 14, pro.TrialDays)
	assert.True(t, pro.HasFeature(plans.FeatureFormAnalysis))

	quota, ok := pro.Quota(plans.CategoryWorkouts)
	require.True(t, ok)
	assert.Equal(t, plans.Unlimited, quota)

	_, ok = pro.Quota(plans.CategoryModifications)
	assert.False(t, ok, "absent quota fields stay absent")
}

func TestFileSource_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := plans.NewCatalog(context.Background(),
		plans.NewFileSource(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.ErrorIs(t, err, plans.ErrFailedToLoadPlans)
}

func TestFileSource_MalformedYAML(t *testing.T) {
	t.Parallel()

	path := writeCatalogFile(t, "plans: [unclosed")

	_, err := plans.NewCatalog(context.Background(), plans.NewFileSource(path))
	assert.ErrorIs(t, err, plans.ErrFailedToLoadPlans)
}

func TestFileSource_RejectsDuplicateAndMissingIDs(t *testing.T) {
	t.Parallel()

	dupe := writeCatalogFile(t, `
plans:
  - id: free
    name: Free
    default: true
  - id: free
    name: Also Free
`)
	_, err := plans.NewCatalog(context.Background(), plans.NewFileSource(dupe))
	assert.ErrorIs(t, err, plans.ErrInvalidPlanConfiguration)

	missing := writeCatalogFile(t, `
plans:
  - name: Anonymous
`)
	_, err = plans.NewCatalog(context.Background(), plans.NewFileSource(missing))
	assert.ErrorIs(t, err, plans.ErrInvalidPlanConfiguration)
}
