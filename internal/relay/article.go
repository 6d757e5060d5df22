package relay

import (
	"fmt"
	"html"
	"strings"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

// BuildArticleHTML renders the article body: one <img> per hosted image in page
// order followed by a caption with the source page count.
func BuildArticleHTML(images []domain.Image, pageCount int) string {
	var b strings.Builder
	for _, img := range images {
		fmt.Fprintf(&b, `<img src="%s">`, html.EscapeString(img.RemoteURL))
	}
	fmt.Fprintf(&b, "<p>Total pages: %d</p>", pageCount)
	return b.String()
}
