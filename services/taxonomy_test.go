package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyClassify(t *testing.T) {
	r := DefaultTaxonomyResolver()

	tests := []struct {
		name, title, description, hint, want string
	}{
		{"leaf match", "Inundación en el barrio", "desborde del arroyo", "", "ambiental/hidrometeo/inundacion"},
		{"hint participates", "Evento", "", "granizo", "ambiental/hidrometeo/tormenta_severa"},
		{"crime", "Asalto a mano armada", "arrebatador en moto", "", "seguridad/delitos/robo"},
		{"no keywords", "Reunión vecinal", "sin novedades", "Social", FallbackCategory},
		{"canonical hint passes through", "Cualquier cosa", "", "seguridad/delitos/homicidio", "seguridad/delitos/homicidio"},
		{"fallback hint passes through", "Incendio", "", "otros/desconocido", FallbackCategory},
		{"tie keeps first leaf", "Incendio forestal", "", "", "ambiental/fuego/incendio_forestal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(tt.title, tt.description, tt.hint))
		})
	}
}

func TestTaxonomyOtherFallbacks(t *testing.T) {
	r, err := NewTaxonomyResolver([]byte(`
- name: infra
  keywords: ["corte"]
  children:
    - name: energia
      keywords: ["apagon"]
      children:
        - name: transformador
          keywords: ["transformador"]
`))
	require.NoError(t, err)

	assert.Equal(t, "infra/otros", r.Classify("corte de calle", "", ""))
	assert.Equal(t, "infra/energia/otros", r.Classify("apagón general", "", ""))
	assert.Equal(t, "infra/energia/transformador", r.Classify("explotó un transformador", "", ""))
	assert.Equal(t, FallbackCategory, r.Classify("nada", "", ""))
}

func TestTaxonomyInvalid(t *testing.T) {
	_, err := NewTaxonomyResolver([]byte("{not: [valid"))
	assert.Error(t, err)

	_, err = NewTaxonomyResolver([]byte("[]"))
	assert.Error(t, err)
}

func TestPassThroughResolver(t *testing.T) {
	r := PassThroughResolver{}
	assert.Equal(t, "fuego", r.Classify("x", "y", "  Fuego "))
	assert.Equal(t, FallbackCategory, r.Classify("x", "y", " "))
}
