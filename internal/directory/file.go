package directory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dalscooter/concern-service/internal/domain"
)

// FileDirectory serves a static operator list loaded from YAML. It is meant
// for local runs where no directory database exists.
//
//	operators:
//	  - operatorId: op1
//	    email: op1@example.com
//	    name: Op One
//	    group: Franchise
type FileDirectory struct {
	operators []domain.Operator
}

type fileSchema struct {
	Operators []struct {
		domain.Operator `yaml:",inline"`
		Disabled        bool `yaml:"disabled"`
	} `yaml:"operators"`
}

// LoadFileDirectory reads and validates a YAML operator file.
func LoadFileDirectory(path string) (*FileDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	return ParseFileDirectory(raw)
}

// ParseFileDirectory decodes YAML operator data.
func ParseFileDirectory(raw []byte) (*FileDirectory, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}

	seen := make(map[string]struct{}, len(schema.Operators))
	ops := make([]domain.Operator, 0, len(schema.Operators))
	for i, entry := range schema.Operators {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("operators[%d]: operatorId required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("operators[%d]: duplicate operatorId %q", i, id)
		}
		seen[id] = struct{}{}
		if entry.Disabled {
			continue
		}
		op := entry.Operator
		op.ID = id
		ops = append(ops, op)
	}
	return &FileDirectory{operators: ops}, nil
}

func (d *FileDirectory) ListEligible(_ context.Context, group string, limit int) ([]domain.Operator, error) {
	out := make([]domain.Operator, 0, len(d.operators))
	for _, op := range d.operators {
		if op.Group != group {
			continue
		}
		out = append(out, op)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
