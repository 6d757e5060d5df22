package ehentai

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

// Search lazily walks up to maxPages listing pages for the given query string.
// A listing page is only requested once the consumer has drained the previous one.
// Iteration stops at the first empty page or error.
func (c *Client) Search(ctx context.Context, params string, maxPages int) iter.Seq2[domain.GalleryRef, error] {
	return func(yield func(domain.GalleryRef, error) bool) {
		seen := make(map[int64]struct{})
		for page := 0; maxPages <= 0 || page < maxPages; page++ {
			if err := ctx.Err(); err != nil {
				yield(domain.GalleryRef{}, err)
				return
			}

			body, err := c.fetch(ctx, c.listingURL(params, page), fmt.Sprintf("listing page %d", page))
			if err != nil {
				yield(domain.GalleryRef{}, err)
				return
			}
			refs, err := parseListing(body)
			if err != nil {
				yield(domain.GalleryRef{}, fmt.Errorf("listing page %d: %w", page, err))
				return
			}
			if len(refs) == 0 {
				return
			}

			for _, ref := range refs {
				if _, dup := seen[ref.ID]; dup {
					continue
				}
				seen[ref.ID] = struct{}{}
				if !yield(ref, nil) {
					return
				}
			}
		}
	}
}

func (c *Client) listingURL(params string, page int) string {
	q, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(params), "?"))
	if err != nil {
		q = url.Values{}
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	} else {
		q.Del("page")
	}
	if enc := q.Encode(); enc != "" {
		return c.baseURL + "/?" + enc
	}
	return c.baseURL + "/"
}

func parseListing(body []byte) ([]domain.GalleryRef, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var refs []domain.GalleryRef
	doc.Find(`a[href*="/g/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if ref, ok := ParseGalleryURL(href); ok {
			refs = append(refs, ref)
		}
	})
	return refs, nil
}
