// Package snapshot manages the lifecycle of remote index snapshots:
// repository and bucket provisioning, snapshot creation, polling to a
// terminal state, and the bookkeeping recorded on the build.
package snapshot

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/newgene/biohub/internal/build"
)

// RepositoryConfig is the templated snapshot repository descriptor:
//
//	{
//	    "type": "s3",
//	    "name": "s3-$(Y)",
//	    "settings": {
//	        "bucket": "mynews-backups",
//	        "base_path": "mynews.info/%(_meta.build_version)s"
//	    },
//	    "acl": "private"
//	}
//
// String leaves may carry two placeholder syntaxes, resolved against a
// build record by Format: "$(Y)"-style calendar fields and
// "%(dot.path)s"-style build record fields.
type RepositoryConfig map[string]any

func (c RepositoryConfig) Repo() string {
	name, _ := c["name"].(string)
	return name
}

func (c RepositoryConfig) Type() string {
	t, _ := c["type"].(string)
	return t
}

func (c RepositoryConfig) ACL() string {
	acl, _ := c["acl"].(string)
	return acl
}

func (c RepositoryConfig) Settings() map[string]any {
	settings, _ := c["settings"].(map[string]any)
	return settings
}

func (c RepositoryConfig) Bucket() string {
	bucket, _ := c.Settings()["bucket"].(string)
	return bucket
}

var (
	calendarRe = regexp.MustCompile(`\$\(([YMD])\)`)
	fieldRe    = regexp.MustCompile(`%\(([^)]+)\)s`)
)

// Format resolves every placeholder in the config against the build
// record, walking the config's string leaves. Formatting is idempotent:
// re-formatting an already-resolved config is a no-op. Any placeholder
// left unresolved is a fatal configuration error.
func (c RepositoryConfig) Format(rec build.Record) (RepositoryConfig, error) {
	rendered, err := renderNode(map[string]any(c), rec, time.Now())
	if err != nil {
		return nil, err
	}
	return RepositoryConfig(rendered.(map[string]any)), nil
}

func renderNode(v any, rec build.Record, now time.Time) (any, error) {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, child := range node {
			r, err := renderNode(child, rec, now)
			if err != nil {
				return nil, err
			}
			out[key] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			r, err := renderNode(child, rec, now)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case string:
		return renderLeaf(node, rec, now)
	default:
		return node, nil
	}
}

// renderLeaf resolves the placeholders of one string leaf: calendar
// fields first, then build record fields. Substituted values are spliced
// verbatim, so a value containing "$(" or "%(...)s" text never trips the
// unresolved checks.
func renderLeaf(s string, rec build.Record, now time.Time) (string, error) {
	s = calendarRe.ReplaceAllStringFunc(s, func(match string) string {
		switch calendarRe.FindStringSubmatch(match)[1] {
		case "Y":
			return fmt.Sprintf("%04d", now.Year())
		case "M":
			return fmt.Sprintf("%02d", now.Month())
		default:
			return fmt.Sprintf("%02d", now.Day())
		}
	})
	if strings.Contains(s, "$(") {
		return "", fmt.Errorf("failed to template repository config: unresolved placeholder in %q", s)
	}

	var leafErr error
	s = fieldRe.ReplaceAllStringFunc(s, func(match string) string {
		path := fieldRe.FindStringSubmatch(match)[1]
		value, ok := rec.Lookup(path)
		if !ok {
			if leafErr == nil {
				leafErr = fmt.Errorf("failed to template repository config: unresolved placeholder %s", match)
			}
			return match
		}
		switch value.(type) {
		case map[string]any, []any:
			if leafErr == nil {
				leafErr = fmt.Errorf("failed to template repository config: placeholder %s resolves to a non-scalar value", match)
			}
			return match
		}
		return fmt.Sprintf("%v", value)
	})
	if leafErr != nil {
		return "", leafErr
	}
	return s, nil
}
