package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// LoadTasks reads a task list from a YAML or JSON file. Declared types
// are normalized, so aliases such as "frontend" are accepted.
func LoadTasks(path string) ([]domain.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return ParseTasks(data, filepath.Ext(path))
}

// ParseTasks decodes a task list. ext selects the decoder (".json" or
// YAML for anything else); a bare list without the tasks key is accepted.
func ParseTasks(data []byte, ext string) ([]domain.Task, error) {
	var file TaskFile
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			var list []domain.Task
			if json.Unmarshal(data, &list) != nil {
				return nil, fmt.Errorf("unmarshal tasks: %w", err)
			}
			file.Tasks = list
		}
	} else {
		if err := yaml.Unmarshal(data, &file); err != nil {
			var list []domain.Task
			if yaml.Unmarshal(data, &list) != nil {
				return nil, fmt.Errorf("unmarshal tasks: %w", err)
			}
			file.Tasks = list
		}
	}

	for i := range file.Tasks {
		t, err := domain.ParseTaskType(string(file.Tasks[i].Type))
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", file.Tasks[i].ID, err)
		}
		file.Tasks[i].Type = t
	}

	if err := ValidateTasks(file.Tasks); err != nil {
		return nil, err
	}
	return file.Tasks, nil
}

// SavePlan writes a Plan to a JSON or YAML file, chosen by extension
func SavePlan(p *Plan, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(p)
	default:
		data, err = json.MarshalIndent(p, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}

	return nil
}
