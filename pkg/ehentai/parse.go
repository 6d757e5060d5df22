package ehentai

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

// ParseGalleryURL extracts id and token from a /g/{id}/{token}/ link.
func ParseGalleryURL(raw string) (domain.GalleryRef, bool) {
	parts, ok := pathAfter(raw, "g")
	if !ok || len(parts) < 2 {
		return domain.GalleryRef{}, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 || parts[1] == "" {
		return domain.GalleryRef{}, false
	}
	return domain.GalleryRef{ID: id, Token: parts[1]}, true
}

// ParsePageURL extracts the content hash, gallery id and 1-based index from a
// /s/{hash}/{gid}-{index} link.
func ParsePageURL(raw string) (domain.SourcePage, bool) {
	parts, ok := pathAfter(raw, "s")
	if !ok || len(parts) < 2 || parts[0] == "" {
		return domain.SourcePage{}, false
	}
	gid, idx, found := strings.Cut(parts[1], "-")
	if !found {
		return domain.SourcePage{}, false
	}
	galleryID, err := strconv.ParseInt(gid, 10, 64)
	if err != nil {
		return domain.SourcePage{}, false
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index <= 0 {
		return domain.SourcePage{}, false
	}
	return domain.SourcePage{GalleryID: galleryID, Index: index, Hash: parts[0], URL: raw}, true
}

// pathAfter returns the path segments following the first segment named prefix.
func pathAfter(raw, prefix string) ([]string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, s := range segs {
		if s == prefix {
			return segs[i+1:], true
		}
	}
	return nil, false
}
