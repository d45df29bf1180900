// Package config loads the pipeline configuration from a JSON file with
// environment-variable overrides for credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PipelineConfig represents the root configuration for the ETL pipeline.
// Fields are pointers so partial config files are safe: omitted fields fall
// back to the Get* defaults.
type PipelineConfig struct {
	// Relational store
	DBPath *string `json:"db_path,omitempty"`

	// Object store
	ObjectEndpoint  *string `json:"object_endpoint,omitempty"`
	ObjectAccessKey *string `json:"object_access_key,omitempty"`
	ObjectSecretKey *string `json:"object_secret_key,omitempty"`
	ObjectSecure    *bool   `json:"object_secure,omitempty"`

	// Feature extraction
	FeatureChunkSize *int `json:"feature_chunk_size,omitempty"`

	// Safety cap on decoded records per raw object; 0 disables the cap.
	MaxRecordsPerObject *int `json:"max_records_per_object,omitempty"`
}

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file. The file must
// have a .json extension. Fields omitted from the file retain their defaults,
// so partial configs are safe. Credentials may additionally be overridden via
// the OBJECT_ACCESS_KEY / OBJECT_SECRET_KEY environment variables.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultPipelineConfig returns a config with no file loaded, applying only
// environment overrides. Used when the -config flag is not provided.
func DefaultPipelineConfig() *PipelineConfig {
	cfg := EmptyPipelineConfig()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *PipelineConfig) applyEnvOverrides() {
	if v := os.Getenv("OBJECT_ACCESS_KEY"); v != "" {
		c.ObjectAccessKey = &v
	}
	if v := os.Getenv("OBJECT_SECRET_KEY"); v != "" {
		c.ObjectSecretKey = &v
	}
	if v := os.Getenv("OBJECT_ENDPOINT"); v != "" {
		c.ObjectEndpoint = &v
	}
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	if c.FeatureChunkSize != nil && *c.FeatureChunkSize <= 0 {
		return fmt.Errorf("feature_chunk_size must be positive, got %d", *c.FeatureChunkSize)
	}
	if c.MaxRecordsPerObject != nil && *c.MaxRecordsPerObject < 0 {
		return fmt.Errorf("max_records_per_object must be non-negative, got %d", *c.MaxRecordsPerObject)
	}
	return nil
}

// GetDBPath returns the db_path value or the default.
func (c *PipelineConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "vibration.db"
	}
	return *c.DBPath
}

// GetObjectEndpoint returns the object_endpoint value or the default.
func (c *PipelineConfig) GetObjectEndpoint() string {
	if c.ObjectEndpoint == nil || *c.ObjectEndpoint == "" {
		return "localhost:9000"
	}
	return *c.ObjectEndpoint
}

// GetObjectAccessKey returns the object_access_key value or the default.
func (c *PipelineConfig) GetObjectAccessKey() string {
	if c.ObjectAccessKey == nil {
		return "minioadmin"
	}
	return *c.ObjectAccessKey
}

// GetObjectSecretKey returns the object_secret_key value or the default.
func (c *PipelineConfig) GetObjectSecretKey() string {
	if c.ObjectSecretKey == nil {
		return "minioadmin"
	}
	return *c.ObjectSecretKey
}

// GetObjectSecure returns the object_secure value or the default.
func (c *PipelineConfig) GetObjectSecure() bool {
	if c.ObjectSecure == nil {
		return false
	}
	return *c.ObjectSecure
}

// GetFeatureChunkSize returns the feature_chunk_size value or the default.
func (c *PipelineConfig) GetFeatureChunkSize() int {
	if c.FeatureChunkSize == nil {
		return 500
	}
	return *c.FeatureChunkSize
}

// GetMaxRecordsPerObject returns the max_records_per_object value or the default.
func (c *PipelineConfig) GetMaxRecordsPerObject() int {
	if c.MaxRecordsPerObject == nil {
		return 0
	}
	return *c.MaxRecordsPerObject
}
