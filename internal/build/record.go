// Package build holds the persisted build record: the description of one
// versioned dataset build, its source collections, mapping overrides, and
// which indices and snapshots have been created from it.
package build

import (
	"sort"
	"strings"
)

// Record is a schemaless build document. Example:
//
//	{
//	    "_id": "mynews_202105261855_5ffxvchx",
//	    "build_config": {
//	        "name": "mynews",
//	        "doc_type": "news",
//	        "num_shards": 1,
//	        "num_replicas": 0,
//	        "cold_collection": "mynews_202012280220_vsdevjdk",
//	        "autobuild": {"type": "snapshot", "env": "local"}
//	    },
//	    "mapping": {"author": {"type": "text"}},
//	    "_meta": {"build_version": "202105261855"},
//	    "index": {"mynews_hot": {"environment": "local", "created_at": ...}},
//	    "jobs": [...],
//	    "pending": ["snapshot"]
//	}
type Record map[string]any

func (r Record) ID() string {
	id, _ := r["_id"].(string)
	return id
}

func (r Record) BuildConfig() map[string]any {
	cfg, _ := r["build_config"].(map[string]any)
	return cfg
}

func (r Record) Mapping() map[string]any {
	m, _ := r["mapping"].(map[string]any)
	return m
}

func (r Record) Meta() map[string]any {
	m, _ := r["_meta"].(map[string]any)
	return m
}

func (r Record) DocType() string {
	t, _ := r.BuildConfig()["doc_type"].(string)
	return t
}

func (r Record) ColdCollection() string {
	c, _ := r.BuildConfig()["cold_collection"].(string)
	return c
}

func (r Record) NumShards() int   { return asInt(r.BuildConfig()["num_shards"], 1) }
func (r Record) NumReplicas() int { return asInt(r.BuildConfig()["num_replicas"], 0) }

// AutoBuildEnv returns the target environment of the build's auto-snapshot
// policy, or "" when the build has none.
func (r Record) AutoBuildEnv() string {
	auto, _ := r.BuildConfig()["autobuild"].(map[string]any)
	env, _ := auto["env"].(string)
	return env
}

// Indices returns the map of created index names to their creation info.
func (r Record) Indices() map[string]map[string]any {
	raw, _ := r["index"].(map[string]any)
	out := make(map[string]map[string]any, len(raw))
	for name, info := range raw {
		m, _ := info.(map[string]any)
		out[name] = m
	}
	return out
}

// LatestIndex returns the most recently created index name, by the
// recorded created_at timestamp, or "" when the build has no index yet.
func (r Record) LatestIndex() string {
	latest, latestAt := "", ""
	for name, info := range r.Indices() {
		at, _ := info["created_at"].(string)
		if latest == "" || at > latestAt || (at == latestAt && name > latest) {
			latest, latestAt = name, at
		}
	}
	return latest
}

// Jobs returns the step status entries recorded under the build.
func (r Record) Jobs() []map[string]any {
	raw, _ := r["jobs"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Lookup resolves a dot path ("build_config.cold_collection") within the
// record, descending through nested maps.
func (r Record) Lookup(path string) (any, bool) {
	var node any = map[string]any(r)
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = m[key]; !ok {
			return nil, false
		}
	}
	return node, true
}

// KeyPaths returns every dot path present in the record, intermediate and
// leaf, sorted. Used to evaluate indexer routing rules.
func (r Record) KeyPaths() []string {
	var paths []string
	var walk func(prefix string, node any)
	walk = func(prefix string, node any) {
		m, ok := node.(map[string]any)
		if !ok {
			return
		}
		for key, value := range m {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			paths = append(paths, path)
			walk(path, value)
		}
	}
	walk("", map[string]any(r))
	sort.Strings(paths)
	return paths
}

// asInt coerces JSON numbers, which decode as float64.
func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}
