package document

import (
	"io"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Info describes a document.
type Info struct {
	PageCount int        `json:"numPages"`
	Version   string     `json:"version,omitempty"`
	Title     string     `json:"title,omitempty"`
	Author    string     `json:"author,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Keywords  string     `json:"keywords,omitempty"`
	Creator   string     `json:"creator,omitempty"`
	Producer  string     `json:"producer,omitempty"`
	Created   *time.Time `json:"created,omitempty"`
	Modified  *time.Time `json:"modified,omitempty"`
	Encrypted bool       `json:"encrypted"`
	PageSizes []PageSize `json:"pageSizes,omitempty"`
	FileSize  int64      `json:"fileSize"`
}

// PageSize is a page's media box in PDF points.
type PageSize struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Inspect reads the document metadata and page geometry.
func Inspect(rs io.ReadSeeker) (*Info, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	ctx, err := load(rs)
	if err != nil {
		return nil, err
	}

	info := &Info{
		PageCount: ctx.PageCount,
		Version:   ctx.XRefTable.Version().String(),
		Title:     ctx.Title,
		Author:    ctx.Author,
		Subject:   ctx.Subject,
		Keywords:  ctx.Keywords,
		Creator:   ctx.Creator,
		Producer:  ctx.Producer,
		Encrypted: ctx.Encrypt != nil,
		FileSize:  size,
	}
	info.Created = parseDate(ctx.XRefTable.CreationDate)
	info.Modified = parseDate(ctx.XRefTable.ModDate)

	if dims, err := ctx.PageDims(); err == nil {
		info.PageSizes = make([]PageSize, len(dims))
		for i, d := range dims {
			info.PageSizes[i] = PageSize{Page: i + 1, Width: d.Width, Height: d.Height}
		}
	}

	return info, nil
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, ok := types.DateTime(s, true)
	if !ok {
		return nil
	}
	return &t
}
