package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
)

// Separator sits between the analysis template and the extracted text.
const Separator = "\n\nPor favor analiza el documento adjunto:\n\n"

const templateA = `Analiza el siguiente documento legal e identifica todas las contragarantías presentes.
Proporciona un análisis detallado que incluya:
1. Tipo de contragarantía
2. Partes involucradas
3. Condiciones específicas
4. Plazos y vigencia
5. Riesgos identificados

Documento:
`

const templateB = `Analiza el siguiente informe social y proporciona un resumen estructurado que incluya:
1. Situación socioeconómica actual
2. Factores de riesgo identificados
3. Recursos disponibles
4. Necesidades detectadas
5. Recomendaciones de intervención
6. Plan de acción sugerido

Informe:
`

// Catalog holds the two fixed analysis templates. Templates are immutable
// after construction; the orchestration layer never rewrites them.
type Catalog struct {
	templates map[domain.ModelVariant]string
}

func NewCatalog() *Catalog {
	return &Catalog{
		templates: map[domain.ModelVariant]string{
			domain.ModelVariantA: templateA,
			domain.ModelVariantB: templateB,
		},
	}
}

// NewCatalogFromFile loads template overrides from a YAML file. Variants
// absent from the file keep their built-in text.
func NewCatalogFromFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}

	var file struct {
		Templates map[string]string `yaml:"templates"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}

	catalog := NewCatalog()
	for variant, text := range file.Templates {
		switch domain.ModelVariant(variant) {
		case domain.ModelVariantA, domain.ModelVariantB:
			if text != "" {
				catalog.templates[domain.ModelVariant(variant)] = text
			}
		default:
			return nil, fmt.Errorf("prompt catalog: unknown variant %q", variant)
		}
	}
	return catalog, nil
}

// Resolve returns the template for a variant. Unknown variants fail with
// ErrInvalidModel; there is no default template.
func (c *Catalog) Resolve(variant domain.ModelVariant) (string, error) {
	template, ok := c.templates[variant]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidModel, "resolve prompt", fmt.Errorf("variant %q", variant))
	}
	return template, nil
}

// Compose builds the model input as template + separator + text, verbatim.
// Callers truncate the extracted text before composing; Compose itself
// never alters either part.
func Compose(template, extractedText string) string {
	return template + Separator + extractedText
}
