package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Batch   batchConfig   `yaml:"batch"`
	Eval    evalConfig    `yaml:"eval"`
	Secrets secretsConfig `yaml:"secrets"`
}

type batchConfig struct {
	Size int `yaml:"size"` // rows per batch handed to the evaluator
}

type evalConfig struct {
	// abort a scan on the first row that fails to parse instead of storing null
	StrictParsing bool `yaml:"strict_parsing"`
	// max remote object size to stream, in MB
	MaxDownloadSizeMB int `yaml:"max_download_size_mb"`
}

// object store credentials; filled from the environment, never from yaml
// committed to disk
type secretsConfig struct {
	EndpointURL string
	AccessKey   string
	SecretKey   string
	BucketName  string
}

var configInstance = &Config{
	Batch: batchConfig{
		Size: 1024 * 8,
	},
	Eval: evalConfig{
		StrictParsing:     false,
		MaxDownloadSizeMB: 10,
	},
}

func GetConfig() *Config {
	return configInstance
}

// LoadSecretsFromEnv pulls object-store credentials out of the environment.
// The driver loads a .env file first, so local runs only need that file.
func LoadSecretsFromEnv() {
	configInstance.Secrets = secretsConfig{
		EndpointURL: os.Getenv("OBJECT_STORE_ENDPOINT"),
		AccessKey:   os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		SecretKey:   os.Getenv("OBJECT_STORE_SECRET_KEY"),
		BucketName:  os.Getenv("OBJECT_STORE_BUCKET"),
	}
}

// overwrite global instance with loaded config
func Decode(filePath string) error {
	parts := strings.Split(filePath, ".")
	suffix := parts[len(parts)-1]
	if suffix != "yaml" && suffix != "yml" {
		return errors.New("file must be a .yaml or .yml file")
	}
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer r.Close()
	raw := make(map[string]interface{})
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	mergeConfig(configInstance, raw)
	return nil
}

func mergeConfig(dst *Config, src map[string]interface{}) {
	if batch, ok := src["batch"].(map[string]interface{}); ok {
		if v, ok := batch["size"].(int); ok {
			dst.Batch.Size = v
		}
	}
	if eval, ok := src["eval"].(map[string]interface{}); ok {
		if v, ok := eval["strict_parsing"].(bool); ok {
			dst.Eval.StrictParsing = v
		}
		if v, ok := eval["max_download_size_mb"].(int); ok {
			dst.Eval.MaxDownloadSizeMB = v
		}
	}
}
