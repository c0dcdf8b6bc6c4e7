package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

// taskManifestFile is the on-disk shape one task manifest is read from.
// TestFiles are paths relative to the manifest file itself; their content
// is read eagerly so internal/model.TaskManifest stays self-contained.
type taskManifestFile struct {
	ID                string            `json:"id"`
	Description       string            `json:"description"`
	GeneratePrompt    string            `json:"generatePrompt"`
	RepairPrompt      string            `json:"repairPrompt"`
	TestFiles         []string          `json:"testFiles"`
	AttemptLimit      int               `json:"attemptLimit"`
	RequiredPatterns  []string          `json:"requiredPatterns"`
	ForbiddenPatterns []string          `json:"forbiddenPatterns"`
	Metadata          map[string]string `json:"metadata"`
}

// LoadTaskManifests reads one task manifest per path.
func LoadTaskManifests(paths []string) ([]model.TaskManifest, error) {
	tasks := make([]model.TaskManifest, 0, len(paths))
	for _, path := range paths {
		task, err := loadTaskManifest(path)
		if err != nil {
			return nil, fmt.Errorf("cmd: load task manifest %s: %w", path, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func loadTaskManifest(path string) (model.TaskManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.TaskManifest{}, err
	}

	var tf taskManifestFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return model.TaskManifest{}, fmt.Errorf("parse JSON: %w", err)
	}
	if tf.ID == "" {
		return model.TaskManifest{}, fmt.Errorf("missing required field: id")
	}

	dir := filepath.Dir(path)
	testFiles := make([]model.TestFile, 0, len(tf.TestFiles))
	for _, rel := range tf.TestFiles {
		content, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return model.TaskManifest{}, fmt.Errorf("read test file %s: %w", rel, err)
		}
		testFiles = append(testFiles, model.TestFile{Path: rel, Content: content})
	}

	return model.TaskManifest{
		ID:                tf.ID,
		Description:       tf.Description,
		GeneratePrompt:    tf.GeneratePrompt,
		RepairPrompt:      tf.RepairPrompt,
		TestFiles:         testFiles,
		AttemptLimit:      tf.AttemptLimit,
		RequiredPatterns:  tf.RequiredPatterns,
		ForbiddenPatterns: tf.ForbiddenPatterns,
		Metadata:          tf.Metadata,
	}, nil
}

// LoadModelVariants reads the "variants" key bound by viper (from
// benchflow-eval.yaml or BENCHEVAL_VARIANTS), same raw-map-then-project
// shape as benchflow's loadBenchmarkConfigs.
func LoadModelVariants(raw []map[string]any) ([]model.ModelVariant, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no variants defined in configuration")
	}

	variants := make([]model.ModelVariant, 0, len(raw))
	for _, v := range raw {
		id, _ := v["variantId"].(string)
		provider, _ := v["provider"].(string)
		modelName, _ := v["model"].(string)
		if id == "" || provider == "" {
			return nil, fmt.Errorf("variant missing required variantId/provider: %v", v)
		}

		temperature, _ := toFloat64(v["temperature"])
		maxTokensF, _ := toFloat64(v["maxTokens"])
		maxTokens := int(maxTokensF)
		effort, _ := v["effort"].(string)

		variants = append(variants, model.ModelVariant{
			VariantID:   id,
			Provider:    provider,
			Model:       modelName,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			Effort:      effort,
		})
	}
	return variants, nil
}

// toFloat64 accepts the numeric types config decoders hand back for a YAML
// or JSON literal (float64 from JSON, int/int64/float64 from YAML) so
// variant config numbers parse regardless of which decoder produced them.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
