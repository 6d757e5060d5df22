package tags

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

const sampleDB = `{
  "repo": "x",
  "data": [
    {"namespace": "rows", "data": {"female": {"name": "女性"}, "artist": {"name": "艺术家"}}},
    {"namespace": "female", "data": {"lolicon": {"name": "萝莉"}, "long hair": {"name": "长发"}}},
    {"namespace": "character", "data": {"yui": {"name": "由依 | 结衣"}}}
  ]
}`

func loadSample(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.text.json")
	if err := os.WriteFile(path, []byte(sampleDB), 0o644); err != nil {
		t.Fatalf("write db: %v", err)
	}
	db, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return db
}

func TestTranslate(t *testing.T) {
	db := loadSample(t)

	if got := db.TranslateNamespace("female"); got != "女性" {
		t.Fatalf("TranslateNamespace = %q", got)
	}
	if got := db.Translate("female", "lolicon"); !reflect.DeepEqual(got, []string{"萝莉"}) {
		t.Fatalf("Translate = %v", got)
	}
	if got := db.Translate("character", "yui"); !reflect.DeepEqual(got, []string{"由依", "结衣"}) {
		t.Fatalf("Translate alternatives = %v", got)
	}
	if got := db.Translate("parody", "original"); !reflect.DeepEqual(got, []string{"original"}) {
		t.Fatalf("unknown namespace should pass through, got %v", got)
	}
	if got := db.Translate("female", "unknown tag"); !reflect.DeepEqual(got, []string{"unknown tag"}) {
		t.Fatalf("unknown tag should pass through, got %v", got)
	}
}

func TestLoadEmptyPathIsIdentity(t *testing.T) {
	db, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := db.TranslateNamespace("female"); got != "female" {
		t.Fatalf("expected identity, got %q", got)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFormat(t *testing.T) {
	f := NewFormatter(loadSample(t))
	detail := domain.GalleryDetail{
		Title: "A & B",
		URL:   "https://e-hentai.org/g/1/abc/",
		Tags: []domain.Tag{
			{Namespace: "female", Value: "long hair"},
			{Namespace: "artist", Value: "foo-bar"},
			{Namespace: "female", Value: "lolicon"},
			{Namespace: "character", Value: "yui"},
		},
	}

	got := f.Format(detail, "https://telegra.ph/x?a=1&b=2")
	want := "<code>    女性</code>: #长发 #萝莉\n" +
		"<code>   艺术家</code>: #foo_bar\n" +
		"<code>character</code>: #由依 #结衣\n" +
		"<code>preview</code>: <a href=\"https://telegra.ph/x?a=1&amp;b=2\">A &amp; B</a>\n" +
		"<code>source</code>: https://e-hentai.org/g/1/abc/"
	if got != want {
		t.Fatalf("Format mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestHashtagReplacesEverySeparator(t *testing.T) {
	if got := Hashtag("big breasts/oppai·x-y"); got != "#big_breasts_oppai_x_y" {
		t.Fatalf("Hashtag = %q", got)
	}
}
