package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environments is the declarative registry of indexing environments,
// snapshot environments and indexer routing rules, loaded from YAML.
//
// Example:
//
//	indexer_select:
//	  build_config.cold_collection: cold_hot
//	index:
//	  prod:
//	    host: http://localhost:9200
//	    args:
//	      timeout: 300s
//	      max_retries: 10
//	    concurrency: 3
//	snapshot:
//	  prod-s3:
//	    cloud:
//	      type: aws
//	      access_key: "..."
//	      secret_key: "..."
//	      region: us-west-2
//	    repository:
//	      name: "s3-$(Y)"
//	      type: s3
//	      settings:
//	        bucket: mynews-backups
//	        base_path: "mynews.info/$(Y)"
//	      acl: private
//	    indexer: prod
//	    monitor_delay: 15
type Environments struct {
	// IndexerSelect maps a dot-path within a build record to an indexer
	// variant tag. A build record matching exactly one path selects that
	// variant; matching none selects the default indexer.
	IndexerSelect map[string]string `yaml:"indexer_select"`

	Index    map[string]IndexEnv    `yaml:"index"`
	Snapshot map[string]SnapshotEnv `yaml:"snapshot"`
}

// IndexEnv describes one named indexing destination.
type IndexEnv struct {
	Name        string     `yaml:"-"`
	Host        string     `yaml:"host"`
	Args        ClientArgs `yaml:"args"`
	Concurrency int        `yaml:"concurrency"`
}

// ClientArgs are search-engine client connection options.
type ClientArgs struct {
	Hosts      []string      `yaml:"hosts"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SnapshotEnv describes one named snapshot environment. Repository is kept
// as a raw document because its string leaves may carry template
// placeholders resolved against a build record at snapshot time.
type SnapshotEnv struct {
	Name         string         `yaml:"-"`
	Cloud        CloudConfig    `yaml:"cloud"`
	Repository   map[string]any `yaml:"repository"`
	Indexer      string         `yaml:"indexer"`
	MonitorDelay int            `yaml:"monitor_delay"`
}

// CloudConfig selects and configures the object-store backend holding
// snapshot repositories.
type CloudConfig struct {
	Type      string `yaml:"type"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LoadEnvironments reads and normalizes the environments registry.
func LoadEnvironments(path string) (*Environments, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read environments file: %w", err)
	}

	var envs Environments
	if err := yaml.Unmarshal(raw, &envs); err != nil {
		return nil, fmt.Errorf("parse environments file: %w", err)
	}
	if err := envs.Normalize(); err != nil {
		return nil, err
	}
	return &envs, nil
}

// Normalize fills names, defaults and cross-references.
func (e *Environments) Normalize() error {
	for name, env := range e.Index {
		env.Name = name
		if len(env.Args.Hosts) == 0 && env.Host != "" {
			env.Args.Hosts = []string{env.Host}
		}
		if len(env.Args.Hosts) == 0 {
			return fmt.Errorf("indexing environment %q: no host configured", name)
		}
		if env.Concurrency <= 0 {
			env.Concurrency = 3
		}
		e.Index[name] = env
	}

	for name, env := range e.Snapshot {
		env.Name = name
		if env.MonitorDelay <= 0 {
			env.MonitorDelay = 15
		}
		if _, ok := e.Index[env.Indexer]; !ok {
			return fmt.Errorf("snapshot environment %q: unknown indexing environment %q", name, env.Indexer)
		}
		if env.Repository == nil {
			return fmt.Errorf("snapshot environment %q: no repository configured", name)
		}
		e.Snapshot[name] = env
	}
	return nil
}
