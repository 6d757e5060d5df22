package ehentai

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

const miscNamespace = "misc"

// Gallery fetches the detail pages of a gallery and returns a snapshot including
// every page link in index order.
func (c *Client) Gallery(ctx context.Context, ref domain.GalleryRef) (domain.GalleryDetail, error) {
	galleryURL := c.GalleryURL(ref.ID, ref.Token)

	body, err := c.fetch(ctx, galleryURL, "gallery "+ref.String())
	if err != nil {
		return domain.GalleryDetail{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.GalleryDetail{}, fmt.Errorf("parse gallery %s: %w", ref, err)
	}

	detail := domain.GalleryDetail{
		Ref:       ref,
		URL:       galleryURL,
		Title:     strings.TrimSpace(doc.Find("#gn").First().Text()),
		TitleAlt:  strings.TrimSpace(doc.Find("#gj").First().Text()),
		Tags:      parseTags(doc),
		ParentID:  parseParent(doc),
		FetchedAt: time.Now().UTC(),
	}
	if detail.Title == "" {
		return domain.GalleryDetail{}, fmt.Errorf("gallery %s: missing title", ref)
	}

	pages := make(map[int]domain.SourcePage)
	collectPages(doc, ref.ID, pages)

	for p := 1; p < detailPageCount(doc); p++ {
		pageURL := fmt.Sprintf("%s?p=%d", galleryURL, p)
		body, err := c.fetch(ctx, pageURL, fmt.Sprintf("gallery %s page %d", ref, p))
		if err != nil {
			return domain.GalleryDetail{}, err
		}
		next, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return domain.GalleryDetail{}, fmt.Errorf("parse gallery %s page %d: %w", ref, p, err)
		}
		collectPages(next, ref.ID, pages)
	}

	detail.Pages = make([]domain.SourcePage, 0, len(pages))
	for _, sp := range pages {
		detail.Pages = append(detail.Pages, sp)
	}
	sort.Slice(detail.Pages, func(i, j int) bool { return detail.Pages[i].Index < detail.Pages[j].Index })
	return detail, nil
}

// PageBytes resolves the full-size image on a page viewer and downloads it.
func (c *Client) PageBytes(ctx context.Context, page domain.SourcePage) ([]byte, error) {
	body, err := c.fetch(ctx, page.URL, fmt.Sprintf("page %d/%d viewer", page.GalleryID, page.Index))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page viewer: %w", err)
	}
	src, ok := doc.Find("img#img").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("page %d/%d: image not found", page.GalleryID, page.Index)
	}

	data, err := c.fetch(ctx, strings.TrimSpace(src), fmt.Sprintf("page %d/%d image", page.GalleryID, page.Index))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("page %d/%d: empty image", page.GalleryID, page.Index)
	}
	return data, nil
}

func parseTags(doc *goquery.Document) []domain.Tag {
	var tags []domain.Tag
	doc.Find("#taglist tr").Each(func(_ int, row *goquery.Selection) {
		ns := strings.TrimSuffix(strings.TrimSpace(row.Find("td.tc").First().Text()), ":")
		if ns == "" {
			ns = miscNamespace
		}
		row.Find("td div a").Each(func(_ int, a *goquery.Selection) {
			if v := strings.TrimSpace(a.Text()); v != "" {
				tags = append(tags, domain.Tag{Namespace: ns, Value: v})
			}
		})
	})
	return tags
}

func parseParent(doc *goquery.Document) *int64 {
	var parent *int64
	doc.Find("#gdd tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		label := strings.TrimSpace(row.Find("td.gdt1").Text())
		if !strings.HasPrefix(label, "Parent") {
			return true
		}
		if id, err := strconv.ParseInt(strings.TrimSpace(row.Find("td.gdt2 a").First().Text()), 10, 64); err == nil {
			parent = &id
		}
		return false
	})
	return parent
}

func collectPages(doc *goquery.Document, galleryID int64, into map[int]domain.SourcePage) {
	doc.Find(`#gdt a[href*="/s/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		sp, ok := ParsePageURL(href)
		if !ok || sp.GalleryID != galleryID {
			return
		}
		if _, exists := into[sp.Index]; !exists {
			into[sp.Index] = sp
		}
	})
}

// detailPageCount reads the highest page number from the pagination table.
func detailPageCount(doc *goquery.Document) int {
	count := 1
	doc.Find("table.ptt td").Each(func(_ int, td *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(td.Text())); err == nil && n > count {
			count = n
		}
	})
	return count
}
