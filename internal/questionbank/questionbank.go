// Package questionbank reads authored question sets from YAML files and checks them against the
// bank JSON schema before they reach the assessment service.
package questionbank

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"placement-service/internal/domain"

	"github.com/qri-io/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// ErrSchema is returned when a bank file does not match the bank schema.
var ErrSchema = errors.New("question bank does not match schema")

type bank struct {
	Questions []domain.Question `yaml:"questions"`
}

// Load reads and parses a bank file.
func Load(ctx context.Context, path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, data)
}

// Parse validates raw YAML against the bank schema and decodes its questions in file order.
func Parse(ctx context.Context, data []byte) ([]domain.Question, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("question bank is not representable as JSON: %w", err)
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(schemaJSON, rs); err != nil {
		return nil, fmt.Errorf("compile bank schema: %w", err)
	}
	verrs, err := rs.ValidateBytes(ctx, asJSON)
	if err != nil {
		return nil, fmt.Errorf("validate question bank: %w", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, v.PropertyPath+": "+v.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}

	var b bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}
	return b.Questions, nil
}
