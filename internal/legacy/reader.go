package legacy

// reader.go wraps the raw upload stream before line framing:
//
//   - bomSkipReader removes a UTF-8 BOM (0xEF 0xBB 0xBF), which Windows
//     tools commonly prepend and which would corrupt the first line's
//     fixed offsets.
//   - CountingReader tracks bytes read for ingest logging.
//
// WrapUpload applies both in the right order.

import "io"

// bomSkipReader skips a leading UTF-8 BOM if present.
type bomSkipReader struct {
	r       io.Reader
	checked bool
	rest    []byte
}

func newBOMSkipReader(r io.Reader) *bomSkipReader {
	return &bomSkipReader{r: r}
}

func (b *bomSkipReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if !(n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF) {
			b.rest = buf[:n]
		}
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if len(b.rest) == 0 && err == io.EOF {
			return 0, io.EOF
		}
	}
	if len(b.rest) > 0 {
		n := copy(p, b.rest)
		b.rest = b.rest[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// CountingReader wraps an io.Reader and tracks bytes read.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// WrapUpload prepares an uploaded file stream for decoding: the BOM is
// stripped first, then reads are counted for logging.
func WrapUpload(r io.Reader) *CountingReader {
	return &CountingReader{r: newBOMSkipReader(r)}
}
