package recurrence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/courtboard/internal/court"
)

const catalogYAML = `
templates:
  - id: rain
    name: Rain delay
    reason: rain
    duration: 45
    courts: [1, 2]
    wet: true
  - id: league
    name: League night
    reason: league
    duration: 180
    courts: [5, 6, 7]
recurrences:
  - id: weekly-league
    pattern: weekly
    templateId: league
  - id: monthly-clinic
    pattern: monthly
    frequency: 2
    template:
      id: clinic
      name: Clinic
      reason: clinic
      duration: 90
      courts: [9]
`

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog.Templates, 2)
	require.Len(t, catalog.Recurrences, 2)

	rain, ok := catalog.Template("rain")
	require.True(t, ok)
	assert.True(t, rain.Wet)
	assert.Equal(t, 45, rain.DurationMinutes)

	weekly, ok := catalog.Recurrence("weekly-league")
	require.True(t, ok)
	assert.Equal(t, court.PatternWeekly, weekly.Pattern)
	assert.Equal(t, 1, weekly.Frequency)
	require.NotNil(t, weekly.Template)
	assert.Equal(t, []int{5, 6, 7}, weekly.Template.Courts)

	monthly, ok := catalog.Recurrence("monthly-clinic")
	require.True(t, ok)
	assert.Equal(t, 2, monthly.Frequency)
	assert.Equal(t, "clinic", monthly.Template.ID)
}

func TestParseCatalogErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseCatalog([]byte("recurrences:\n  - id: x\n    pattern: daily\n    templateId: missing\n"))
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = ParseCatalog([]byte("templates:\n  - id: t\n    name: T\n    reason: r\n    duration: 0\n    courts: [1]\n"))
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	empty, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Empty(t, empty.Templates)
}
