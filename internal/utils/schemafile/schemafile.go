// Package schemafile reads extraction schemas from disk.
package schemafile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

// Load reads a field -> description map. YAML is a superset of JSON, so
// both formats are accepted.
func Load(path string) (models.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (models.Schema, error) {
	var schema models.Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema has no fields")
	}
	return schema, nil
}
