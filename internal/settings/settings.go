// Package settings loads the per-user StintFlow settings file. Absent keys
// fall back to environment variables and then to built-in defaults.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

type MongoSettings struct {
	URI        string `json:"uri,omitempty" yaml:"uri,omitempty"`
	Host       string `json:"host,omitempty" yaml:"host,omitempty"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
	AuthSource string `json:"auth_source,omitempty" yaml:"auth_source,omitempty"`
}

type LoggingSettings struct {
	RetentionDays int `json:"retention_days,omitempty" yaml:"retention_days,omitempty"`
}

type AgentSettings struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Settings struct {
	MongoDB MongoSettings   `json:"mongodb,omitempty" yaml:"mongodb,omitempty"`
	Logging LoggingSettings `json:"logging,omitempty" yaml:"logging,omitempty"`
	Agent   AgentSettings   `json:"agent,omitempty" yaml:"agent,omitempty"`
}

const schemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "mongodb": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "uri": {"type": "string"},
        "host": {"type": "string"},
        "database": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "auth_source": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "retention_days": {"type": "integer", "minimum": 1}
      }
    },
    "agent": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string"}
      }
    }
  }
}`

var settingsSchema = jsonschema.MustCompileString("settings.json", schemaJSON)

// DefaultPath returns the OS-standard per-user settings location, e.g.
// ~/.config/StintFlow/settings.json on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "StintFlow", "settings.json"), nil
}

// Load reads the settings file at path, validates it against the settings
// schema, and fills absent keys from the environment and built-in defaults.
// A missing file is not an error: the result is environment + defaults.
func Load(path string) (*Settings, error) {
	var cfg Settings
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := validateRaw(path, b); err != nil {
			return nil, err
		}
		if err := decodeStrict(path, b, &cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// settings are optional; env and defaults apply
	default:
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeStrict(path string, b []byte, cfg *Settings) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return decodeYAMLStrict(b, cfg)
	default:
		return decodeJSONStrict(b, cfg)
	}
}

func decodeJSONStrict(b []byte, cfg *Settings) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

// validateRaw checks the raw document against the settings schema so schema
// violations surface with JSON-pointer locations rather than decode errors.
func validateRaw(path string, b []byte) error {
	var raw any
	// yaml.Unmarshal accepts JSON as well and yields plain Go values.
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	// The schema validator expects encoding/json value types, so normalize
	// through a JSON round trip.
	jb, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(jb, &doc); err != nil {
		return err
	}
	if err := settingsSchema.Validate(doc); err != nil {
		return fmt.Errorf("settings %s: %w", filepath.Base(path), err)
	}
	return nil
}

func applyEnv(cfg *Settings) {
	if cfg.MongoDB.URI == "" {
		cfg.MongoDB.URI = os.Getenv("STINTFLOW_MONGODB_URI")
	}
	if cfg.MongoDB.Host == "" {
		cfg.MongoDB.Host = os.Getenv("STINTFLOW_MONGODB_HOST")
	}
	if cfg.MongoDB.Database == "" {
		cfg.MongoDB.Database = os.Getenv("STINTFLOW_MONGODB_DATABASE")
	}
	if cfg.MongoDB.Username == "" {
		cfg.MongoDB.Username = os.Getenv("STINTFLOW_MONGODB_USERNAME")
	}
	if cfg.MongoDB.Password == "" {
		cfg.MongoDB.Password = os.Getenv("STINTFLOW_MONGODB_PASSWORD")
	}
	if cfg.MongoDB.AuthSource == "" {
		cfg.MongoDB.AuthSource = os.Getenv("STINTFLOW_MONGODB_AUTH_SOURCE")
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = os.Getenv("STINTFLOW_AGENT_NAME")
	}
	if cfg.Logging.RetentionDays == 0 {
		if v := os.Getenv("STINTFLOW_LOG_RETENTION_DAYS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Logging.RetentionDays = n
			}
		}
	}
}

func applyDefaults(cfg *Settings) {
	if cfg == nil {
		return
	}
	if cfg.MongoDB.Host == "" {
		cfg.MongoDB.Host = "localhost:27017"
	}
	if cfg.MongoDB.Database == "" {
		cfg.MongoDB.Database = "stintflow"
	}
	if cfg.Logging.RetentionDays == 0 {
		cfg.Logging.RetentionDays = 30
	}
	if cfg.Agent.Name == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Agent.Name = host
		}
	}
}

func validate(cfg *Settings) error {
	if cfg == nil {
		return fmt.Errorf("settings are nil")
	}
	if cfg.Logging.RetentionDays < 1 {
		return fmt.Errorf("logging.retention_days must be >= 1")
	}
	if strings.TrimSpace(cfg.MongoDB.URI) == "" && strings.TrimSpace(cfg.MongoDB.Host) == "" {
		return fmt.Errorf("mongodb.uri or mongodb.host is required")
	}
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		return fmt.Errorf("agent.name is required (host name lookup failed; set it explicitly)")
	}
	return nil
}
