package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage: "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to a service account key for GCS. Empty uses ADC.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}

// DatasourcesConfig holds a map of named storage configurations.
type DatasourcesConfig map[string]StorageConfig

// DecodeAll decodes named storage entries from their YAML map form.
func DecodeAll(raw map[string]any) (DatasourcesConfig, error) {
	out := make(DatasourcesConfig, len(raw))
	for name, v := range raw {
		var cfg StorageConfig
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "yaml",
			Result:  &cfg,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(v); err != nil {
			return nil, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}
