package testplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrPlanNotFound is returned when no plan file exists for a
// (project, station, name) reference.
var ErrPlanNotFound = errors.New("test plan not found")

// FileRepository implements Repository by reading one plan file per
// (project, station, name) from disk — JSON or YAML, picked by extension,
// mirroring the instrument registry's config-loading convention (spec §6).
//
// Layout: {baseDir}/{project}/{station}/{name}.yaml (or .yml/.json).
type FileRepository struct {
	baseDir string
}

// NewFileRepository constructs a FileRepository rooted at baseDir.
func NewFileRepository(baseDir string) *FileRepository {
	return &FileRepository{baseDir: baseDir}
}

type planFile struct {
	Items []itemFile `json:"items" yaml:"items"`
}

type itemFile struct {
	ItemNo     int                    `json:"item_no" yaml:"item_no"`
	ItemName   string                 `json:"item_name" yaml:"item_name"`
	TestType   string                 `json:"test_type" yaml:"test_type"`
	SwitchMode string                 `json:"switch_mode" yaml:"switch_mode"`
	Parameters map[string]interface{} `json:"parameters" yaml:"parameters"`
	ValueType  string                 `json:"value_type" yaml:"value_type"`
	LimitType  string                 `json:"limit_type" yaml:"limit_type"`
	LowerLimit *float64               `json:"lower_limit" yaml:"lower_limit"`
	UpperLimit *float64               `json:"upper_limit" yaml:"upper_limit"`
	EqLimit    string                 `json:"eq_limit" yaml:"eq_limit"`
	Unit       string                 `json:"unit" yaml:"unit"`
	UseResult  string                 `json:"use_result" yaml:"use_result"`
	Enabled    bool                   `json:"enabled" yaml:"enabled"`
	TimeoutMs  int                    `json:"timeout_ms" yaml:"timeout_ms"`
	WaitMsec   int                    `json:"wait_msec" yaml:"wait_msec"`
}

// GetPlan implements Repository.
func (r *FileRepository) GetPlan(_ context.Context, project, station, name string) (*Plan, error) {
	path, err := r.resolve(project, station, name)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrPlanNotFound, project, station, name)
		}

		return nil, fmt.Errorf("read test plan %s: %w", path, err)
	}

	var pf planFile

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("parse yaml test plan %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("parse json test plan %s: %w", path, err)
		}
	}

	plan := &Plan{Project: project, Station: station, Name: name, Items: make([]TestItem, len(pf.Items))}

	for i, item := range pf.Items {
		plan.Items[i] = TestItem{
			ItemNo:     item.ItemNo,
			ItemName:   item.ItemName,
			TestType:   item.TestType,
			SwitchMode: item.SwitchMode,
			Parameters: item.Parameters,
			ValueType:  ValueType(item.ValueType),
			LimitType:  LimitType(item.LimitType),
			LowerLimit: item.LowerLimit,
			UpperLimit: item.UpperLimit,
			EqLimit:    item.EqLimit,
			Unit:       item.Unit,
			UseResult:  item.UseResult,
			Enabled:    item.Enabled,
			TimeoutMs:  item.TimeoutMs,
			WaitMsec:   item.WaitMsec,
		}
	}

	return plan, nil
}

// resolve finds the first matching extension for a plan file, preferring
// YAML to match the instrument registry's default.
func (r *FileRepository) resolve(project, station, name string) (string, error) {
	dir := filepath.Join(r.baseDir, project, station)

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		candidate := filepath.Join(dir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s/%s/%s", ErrPlanNotFound, project, station, name)
}
