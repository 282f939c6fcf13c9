package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

const sampleYAML = `
statuses:
  - {id: "64a1", label: "Abierto", value: open}
  - {id: "64a2", label: "Pendiente", value: pending}
  - {id: "64a3", label: "Cerrado", value: closed}
priorities:
  - {id: "p1", label: "Media", value: media}
impacts:
  - {id: "i1", label: "Persona", value: persona}
departments:
  - {id: "d1", label: "Soporte TI", value: soporte_ti}
types:
  - {id: "t1", label: "Incidente", value: incidente}
sources:
  - {id: "s1", label: "Correo", value: email}
  - {id: "s2", label: "Web", value: web}
defaults:
  status: open
  priority: media
  impact: persona
  department: soporte_ti
  type: incidente
  sources:
    email: email
    web: web
`

func TestDefaultCatalogClassification(t *testing.T) {
	c := Default()

	cls, err := c.DefaultClassification(domain.OriginEmail)
	require.NoError(t, err)
	assert.Equal(t, "status-open", cls.StatusID)
	assert.Equal(t, "priority-media", cls.PriorityID)
	assert.Equal(t, "impact-persona", cls.ImpactID)
	assert.Equal(t, "department-soporte_ti", cls.DepartmentID)
	assert.Equal(t, "type-incidente", cls.TypeID)
	assert.Equal(t, "source-email", cls.SourceID)

	web, err := c.DefaultClassification(domain.OriginWeb)
	require.NoError(t, err)
	assert.Equal(t, "source-web", web.SourceID)
}

func TestStatusTranslationRoundTrip(t *testing.T) {
	c := Default()
	for _, v := range []domain.StatusValue{domain.StatusOpen, domain.StatusPending, domain.StatusClosed} {
		id, err := c.StatusID(v)
		require.NoError(t, err)
		back, err := c.StatusValue(id)
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}
	_, err := c.StatusValue("nope")
	assert.Error(t, err)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	id, err := c.StatusID(domain.StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, "64a3", id)
	assert.True(t, c.Has(KindDepartment, "d1"))
	assert.False(t, c.Has(KindDepartment, "department-soporte_ti"))
	assert.Equal(t, "Correo", c.Label(KindSource, "s1"))
}

func TestParseRejectsMissingStatusValue(t *testing.T) {
	_, err := Parse([]byte(`
statuses:
  - {id: "a", value: open}
priorities: [{id: p, value: media}]
impacts: [{id: i, value: persona}]
departments: [{id: d, value: soporte_ti}]
types: [{id: t, value: incidente}]
sources: [{id: s, value: email}]
defaults: {status: open, priority: media, impact: persona, department: soporte_ti, type: incidente}
`))
	assert.Error(t, err)
}

func TestLoadWithoutPathUsesBuiltIn(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Len(t, c.Items(KindDepartment), 5)
}
