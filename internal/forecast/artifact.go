package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// LoadModel reads a model artifact written by SaveModel. A missing or unreadable file is a configuration error.
// An artifact that was never fitted loads successfully; using it fails with a model-not-fitted error.
func LoadModel(path string) (*SmoothingModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, exception.NewConfigurationError(moduleForecast, fmt.Sprintf("model file %s does not exist", path), err)
		}
		return nil, exception.NewConfigurationError(moduleForecast, fmt.Sprintf("failed to read model file %s", path), err)
	}
	var m SmoothingModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, exception.NewConfigurationError(moduleForecast, fmt.Sprintf("model file %s is not a valid artifact", path), err)
	}
	checked, err := NewSmoothingModel(m.Estimator, m.Params)
	if err != nil {
		return nil, err
	}
	checked.Fitted, checked.TrainedAt, checked.TrainSize = m.Fitted, m.TrainedAt, m.TrainSize
	logger.Debugf("Loaded %s model from %s (fitted: %t, trained on %d observations).", checked.Estimator, path, checked.Fitted, checked.TrainSize)
	return checked, nil
}

// SaveModel writes m as indented JSON, creating parent directories.
func SaveModel(path string, m *SmoothingModel) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return exception.NewBatchError(moduleForecast, "failed to encode model", err, false, false)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return exception.NewBatchError(moduleForecast, fmt.Sprintf("failed to create directory for %s", path), err, false, false)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return exception.NewBatchError(moduleForecast, fmt.Sprintf("failed to write model file %s", path), err, false, false)
	}
	return nil
}
