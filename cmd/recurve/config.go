package main

import (
	"fmt"
	"os"

	"github.com/siherrmann/recurve/model"
	"gopkg.in/yaml.v3"
)

// Config is the yaml configuration for the cli. The retriever section
// overrides individual fields of the chosen preset; fields it leaves out
// keep the preset's values.
type Config struct {
	Preset       string        `yaml:"preset"`
	EmbeddingDim int           `yaml:"embedding_dim"`
	Chunker      ChunkerConfig `yaml:"chunker"`
	LLM          LLMConfig     `yaml:"llm"`
	// Retriever is decoded lazily so a partial section only touches the
	// fields it names
	Retriever yaml.Node `yaml:"retriever"`
}

// ChunkerConfig selects the document chunking strategy for ingest
type ChunkerConfig struct {
	Strategy     string  `yaml:"strategy"` // sentence, paragraph or semantic
	MaxSentences int     `yaml:"max_sentences"`
	MaxChunkSize int     `yaml:"max_chunk_size"`
	Threshold    float32 `yaml:"threshold"`
}

// LLMConfig enables model-backed sub-query generation
type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// LoadConfig reads the yaml configuration from the given path. A missing
// file yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		Preset:       "balanced",
		EmbeddingDim: 384,
		Chunker: ChunkerConfig{
			Strategy:     "sentence",
			MaxSentences: 5,
			MaxChunkSize: 500,
			Threshold:    0.7,
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return config, nil
}

// RetrieverConfig resolves the preset and applies retriever overrides
func (c *Config) RetrieverConfig() (model.RetrieverConfig, error) {
	var config model.RetrieverConfig
	switch c.Preset {
	case "", "balanced":
		config = model.BalancedConfig()
	case "light":
		config = model.LightConfig()
	case "deep":
		config = model.DeepConfig()
	case "single_layer":
		config = model.SingleLayerConfig()
	default:
		return config, fmt.Errorf("unknown preset %q", c.Preset)
	}

	if !c.Retriever.IsZero() {
		if err := c.Retriever.Decode(&config); err != nil {
			return config, fmt.Errorf("parse retriever overrides: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}
