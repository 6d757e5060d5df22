package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sink types accepted in the publishers file.
const (
	TypeHTTP      = "http"
	TypeSQS       = "sqs"
	TypeSNS       = "sns"
	TypeGCPPubSub = "gcp_pubsub"
)

// SinkConfig is one entry of the publishers file. Exactly the block matching
// Type is read.
type SinkConfig struct {
	ID        string         `json:"id" yaml:"id"`
	Type      string         `json:"type" yaml:"type"`
	Enabled   *bool          `json:"enabled" yaml:"enabled"`
	HTTP      *WebhookConfig `json:"http" yaml:"http"`
	SQS       *SQSConfig     `json:"sqs" yaml:"sqs"`
	SNS       *SNSConfig     `json:"sns" yaml:"sns"`
	GCPPubSub *PubSubConfig  `json:"gcp_pubsub" yaml:"gcp_pubsub"`
}

// IsEnabled defaults to true when the flag is omitted.
func (s SinkConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type sinkFile struct {
	Publishers []SinkConfig `json:"publishers" yaml:"publishers"`
}

// LoadFile reads a YAML or JSON publishers file and returns the enabled sinks
// in file order. Disabled entries are still validated.
func LoadFile(path string) ([]SinkConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	return parseSinks(raw, filepath.Ext(path))
}

func parseSinks(raw []byte, ext string) ([]SinkConfig, error) {
	var doc sinkFile
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode json publishers: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml publishers: %w", err)
		}
	}
	if len(doc.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	seen := make(map[string]struct{}, len(doc.Publishers))
	enabled := make([]SinkConfig, 0, len(doc.Publishers))
	for i, sink := range doc.Publishers {
		sink.ID = strings.TrimSpace(sink.ID)
		sink.Type = strings.ToLower(strings.TrimSpace(sink.Type))
		if sink.ID == "" {
			return nil, fmt.Errorf("publishers[%d]: id is required", i)
		}
		if _, dup := seen[sink.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", sink.ID)
		}
		seen[sink.ID] = struct{}{}

		k, ok := kinds[sink.Type]
		if !ok {
			return nil, fmt.Errorf("publisher %q: unknown type %q", sink.ID, sink.Type)
		}
		if err := k.check(&sink); err != nil {
			return nil, fmt.Errorf("publisher %q: %w", sink.ID, err)
		}
		if sink.IsEnabled() {
			enabled = append(enabled, sink)
		}
	}
	return enabled, nil
}
