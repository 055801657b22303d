package index

import "github.com/newgene/biohub/internal/build"

// Settings is the destination index settings document, finalized to the
// engine wire format at creation time. Built fresh per Indexer instance.
type Settings struct {
	Shards   int
	Replicas int
	Codec    string
	Analysis map[string]any
}

// DefaultSettings returns the skeleton every destination index starts
// from; build-specific overrides are applied by Enrich.
func DefaultSettings() Settings {
	return Settings{
		Shards:   1,
		Replicas: 0,
		Codec:    "best_compression",
		Analysis: map[string]any{
			"analyzer": map[string]any{
				"string_lowercase": map[string]any{
					"tokenizer": "keyword",
					"filter":    "lowercase",
				},
				"whitespace_lowercase": map[string]any{
					"tokenizer": "whitespace",
					"filter":    "lowercase",
				},
			},
			"normalizer": map[string]any{
				"keyword_lowercase_normalizer": map[string]any{
					"filter": []any{"lowercase"},
					"type":   "custom",
				},
			},
		},
	}
}

// Enrich applies the build record's shard and replica overrides.
func (s *Settings) Enrich(rec build.Record) {
	s.Shards = rec.NumShards()
	s.Replicas = rec.NumReplicas()
}

// Finalize renders the wire-format settings document.
func (s Settings) Finalize() map[string]any {
	return map[string]any{
		"index": map[string]any{
			"number_of_shards":   s.Shards,
			"number_of_replicas": s.Replicas,
			"codec":              s.Codec,
			"analysis":           s.Analysis,
		},
	}
}

// Mappings is the destination index mappings document.
type Mappings struct {
	Dynamic    bool
	DocType    string
	Properties map[string]any
	Meta       map[string]any
}

func DefaultMappings() Mappings {
	return Mappings{
		Dynamic:    false,
		Properties: map[string]any{},
	}
}

// Enrich applies the build record's document type, custom field mappings
// and metadata block.
func (m *Mappings) Enrich(rec build.Record) {
	m.DocType = rec.DocType()
	for field, mapping := range rec.Mapping() {
		m.Properties[field] = mapping
	}
	m.Meta = rec.Meta()
}

// Finalize renders the wire-format mappings document. The document type is
// carried inside _meta; the engine has no per-type mappings anymore.
func (m Mappings) Finalize() map[string]any {
	meta := map[string]any{}
	for k, v := range m.Meta {
		meta[k] = v
	}
	if m.DocType != "" {
		meta["doc_type"] = m.DocType
	}
	return map[string]any{
		"dynamic":    m.Dynamic,
		"properties": m.Properties,
		"_meta":      meta,
	}
}
