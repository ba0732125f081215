package share

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is an inclusive [Start, End] window into a file of Size bytes.
// Partial is set when the window came from a Range header, so the response
// must be 206 with Content-Range.
type ByteRange struct {
	Start   int64
	End     int64
	Size    int64
	Partial bool
}

// Length returns the number of bytes in the window.
func (r ByteRange) Length() int64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// ContentRange formats the window for a Content-Range header.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Size)
}

// RangeError reports a Range header that selects no bytes of a file of Size
// bytes. It matches ErrRangeNotSatisfiable.
type RangeError struct {
	Header string
	Size   int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range %q for size %d: %v", e.Header, e.Size, ErrRangeNotSatisfiable)
}

func (e *RangeError) Unwrap() error { return ErrRangeNotSatisfiable }

// ParseRange resolves a "bytes=<start>-<end>" header against a file size.
//
// Either side may be omitted: "bytes=500-" runs to the end of the file and
// "bytes=-100" means the last 100 bytes. An absent or unparseable header (or a
// multi-range request) selects the whole file. An end past the file is
// clamped. A start beyond the file, or any range on an empty file, fails with
// a *RangeError.
func ParseRange(header string, size int64) (ByteRange, error) {
	full := ByteRange{Start: 0, End: size - 1, Size: size}

	rng, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(rng, ",") {
		return full, nil
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(rng), "-")
	if !ok {
		return full, nil
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	start, startErr := parseOffset(startStr)
	end, endErr := parseOffset(endStr)

	var r ByteRange
	switch {
	case startStr != "" && endStr != "" && startErr == nil && endErr == nil:
		r = ByteRange{Start: start, End: end}
	case startStr != "" && endStr == "" && startErr == nil:
		r = ByteRange{Start: start, End: size - 1}
	case startStr == "" && endStr != "" && endErr == nil:
		if end == 0 {
			return ByteRange{}, &RangeError{Header: header, Size: size}
		}
		r = ByteRange{Start: max(size-end, 0), End: size - 1}
	default:
		return full, nil
	}

	r.Size = size
	r.Partial = true
	if r.End > size-1 {
		r.End = size - 1
	}
	if size == 0 || r.Start >= size || r.Start > r.End {
		return ByteRange{}, &RangeError{Header: header, Size: size}
	}
	return r, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative offset %d", n)
	}
	return n, nil
}
