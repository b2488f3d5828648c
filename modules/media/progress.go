package media

import (
	"io"
	"math"
)

// ProgressFunc receives the number of bytes transferred so far and the
// expected total.
type ProgressFunc func(transferred, total int64)

// Percent converts a transfer ratio to a rounded percentage in [0, 100].
func Percent(transferred, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(transferred) / float64(total) * 100))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// progressReader reports cumulative bytes read to a ProgressFunc.
type progressReader struct {
	r           io.Reader
	total       int64
	transferred int64
	report      ProgressFunc
}

func newProgressReader(r io.Reader, total int64, report ProgressFunc) io.Reader {
	if report == nil {
		return r
	}
	return &progressReader{r: r, total: total, report: report}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.transferred += int64(n)
		p.report(p.transferred, p.total)
	}
	return n, err
}
