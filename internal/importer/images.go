package importer

import (
	"encoding/base64"
	"fmt"
	"strings"

	"worksite/pkg/domain"
)

// DefaultMaxImageBytes is the largest embedded picture kept by an import.
const DefaultMaxImageBytes = 5 << 20

// PhotoDescription labels photos created from embedded pictures.
const PhotoDescription = "匯入之現場照片"

// AssociateImages attaches to each row the picture anchored to its sheet row.
// Pictures larger than maxBytes are dropped; the count is returned.
func AssociateImages(rows []Row, images map[int]Image, maxBytes int64) int {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	oversized := 0
	for i := range rows {
		img, ok := images[rows[i].SourceRow]
		if !ok || len(img.Data) == 0 {
			continue
		}
		if int64(len(img.Data)) > maxBytes {
			oversized++
			continue
		}
		rows[i].Image = &img
	}
	return oversized
}

// DataURI encodes the picture inline.
func (i Image) DataURI() string {
	return "data:" + i.ContentType() + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// AttachmentName derives a stable file name from the 1-based sheet row and the
// first ten characters of the record name, so re-imports deduplicate.
func AttachmentName(sheetRow int, recordName string, ext string) string {
	runes := []rune(recordName)
	if len(runes) > 10 {
		runes = runes[:10]
	}
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("現場照片_r%d_%s%s", sheetRow, string(runes), ext)
}

func photoAndAttachment(row Row, name string, newID func() string, now int64) (domain.SitePhoto, domain.Attachment) {
	uri := row.Image.DataURI()
	photo := domain.SitePhoto{
		ID:          newID(),
		URL:         uri,
		Timestamp:   now,
		Description: PhotoDescription,
	}
	att := domain.Attachment{
		ID:   newID(),
		Name: AttachmentName(row.SourceRow+1, name, row.Image.Extension),
		Size: int64(len(row.Image.Data)),
		Type: row.Image.ContentType(),
		URL:  uri,
	}
	return photo, att
}
