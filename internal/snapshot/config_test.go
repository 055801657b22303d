package snapshot

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/newgene/biohub/internal/build"
)

func testRecord() build.Record {
	return build.Record{
		"_id": "mynews_202608_test",
		"_meta": map[string]any{
			"build_version": "v7",
		},
		"build_config": map[string]any{
			"name": "mynews",
		},
	}
}

func TestFormatResolvesPlaceholders(t *testing.T) {
	cfg := RepositoryConfig{
		"name": "s3-$(Y)",
		"type": "s3",
		"settings": map[string]any{
			"bucket":    "backups",
			"base_path": "mynews.info/%(_meta.build_version)s",
		},
		"acl": "private",
	}

	out, err := cfg.Format(testRecord())
	if err != nil {
		t.Fatalf("Format() = %v", err)
	}

	wantName := fmt.Sprintf("s3-%04d", time.Now().Year())
	if out.Repo() != wantName {
		t.Errorf("Repo() = %q, want %q", out.Repo(), wantName)
	}
	if got := out.Settings()["base_path"]; got != "mynews.info/v7" {
		t.Errorf("base_path = %v, want mynews.info/v7", got)
	}
	if out.Bucket() != "backups" {
		t.Errorf("Bucket() = %q", out.Bucket())
	}
	if out.ACL() != "private" {
		t.Errorf("ACL() = %q", out.ACL())
	}
}

func TestFormatIsIdempotent(t *testing.T) {
	cfg := RepositoryConfig{
		"name": "s3-$(Y)",
		"type": "s3",
		"settings": map[string]any{
			"bucket":    "backups",
			"base_path": "mynews.info/%(_meta.build_version)s",
		},
	}

	once, err := cfg.Format(testRecord())
	if err != nil {
		t.Fatal(err)
	}
	twice, err := once.Format(testRecord())
	if err != nil {
		t.Fatalf("re-formatting a resolved config: %v", err)
	}
	if twice.Repo() != once.Repo() {
		t.Errorf("Repo() changed on second format: %q vs %q", twice.Repo(), once.Repo())
	}
	if twice.Settings()["base_path"] != once.Settings()["base_path"] {
		t.Error("base_path changed on second format")
	}
}

func TestFormatUnresolvedPlaceholderIsFatal(t *testing.T) {
	cfg := RepositoryConfig{
		"name": "repo",
		"type": "s3",
		"settings": map[string]any{
			"bucket":    "backups",
			"base_path": "mynews.info/%(no.such.path)s",
		},
	}

	_, err := cfg.Format(testRecord())
	if err == nil || !strings.Contains(err.Error(), "unresolved placeholder") {
		t.Errorf("Format() = %v, want unresolved placeholder error", err)
	}
}

func TestFormatPreservesAwkwardValues(t *testing.T) {
	rec := testRecord()
	meta := rec["_meta"].(map[string]any)
	meta["build_version"] = `v7 "quoted" \ $(weird)`

	cfg := RepositoryConfig{
		"name": "repo",
		"type": "s3",
		"settings": map[string]any{
			"bucket":    "backups",
			"base_path": "mynews.info/%(_meta.build_version)s",
		},
	}

	out, err := cfg.Format(rec)
	if err != nil {
		t.Fatalf("Format() = %v", err)
	}
	want := `mynews.info/v7 "quoted" \ $(weird)`
	if got := out.Settings()["base_path"]; got != want {
		t.Errorf("base_path = %v, want %v", got, want)
	}
}

func TestFormatNonScalarValueIsFatal(t *testing.T) {
	cfg := RepositoryConfig{
		"name": "repo",
		"type": "s3",
		"settings": map[string]any{
			"bucket":    "backups",
			"base_path": "mynews.info/%(build_config)s",
		},
	}

	_, err := cfg.Format(testRecord())
	if err == nil || !strings.Contains(err.Error(), "non-scalar") {
		t.Errorf("Format() = %v, want non-scalar value error", err)
	}
}

func TestFormatCalendarFields(t *testing.T) {
	cfg := RepositoryConfig{
		"name": "s3-$(Y)-$(M)-$(D)",
		"type": "s3",
		"settings": map[string]any{
			"bucket": "backups",
		},
	}

	out, err := cfg.Format(testRecord())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	want := fmt.Sprintf("s3-%04d-%02d-%02d", now.Year(), now.Month(), now.Day())
	if out.Repo() != want {
		t.Errorf("Repo() = %q, want %q", out.Repo(), want)
	}
}
