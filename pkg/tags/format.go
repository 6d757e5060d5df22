package tags

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

const labelWidth = 6

var hashtagUnsafe = regexp.MustCompile(`[-/· ]`)

// Formatter renders the channel message for a gallery.
type Formatter struct {
	db *DB
}

// NewFormatter returns a formatter backed by db. A nil db leaves tags untranslated.
func NewFormatter(db *DB) *Formatter {
	return &Formatter{db: db}
}

// Format renders one line per tag namespace, followed by the article preview
// link and the source address.
func (f *Formatter) Format(detail domain.GalleryDetail, articleURL string) string {
	var b strings.Builder
	for _, group := range f.groups(detail.Tags) {
		fmt.Fprintf(&b, "<code>%s</code>: %s\n", html.EscapeString(padLeft(group.label, labelWidth)), strings.Join(group.tags, " "))
	}
	fmt.Fprintf(&b, "<code>%s</code>: <a href=\"%s\">%s</a>\n",
		padLeft("preview", labelWidth), html.EscapeString(articleURL), html.EscapeString(detail.Title))
	fmt.Fprintf(&b, "<code>%s</code>: %s", padLeft("source", labelWidth), html.EscapeString(detail.URL))
	return b.String()
}

type tagGroup struct {
	label string
	tags  []string
}

// groups keeps namespaces in first-seen order.
func (f *Formatter) groups(tags []domain.Tag) []tagGroup {
	var out []tagGroup
	index := make(map[string]int)
	for _, t := range tags {
		i, ok := index[t.Namespace]
		if !ok {
			i = len(out)
			index[t.Namespace] = i
			out = append(out, tagGroup{label: f.db.TranslateNamespace(t.Namespace)})
		}
		for _, name := range f.db.Translate(t.Namespace, t.Value) {
			out[i].tags = append(out[i].tags, Hashtag(name))
		}
	}
	return out
}

// Hashtag turns a tag name into a single hashtag token.
func Hashtag(name string) string {
	return "#" + html.EscapeString(hashtagUnsafe.ReplaceAllString(strings.TrimSpace(name), "_"))
}

func padLeft(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
