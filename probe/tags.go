package probe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrTagNotFound   = errors.New("tag not found")
)

// Tags is the flat tag map produced by exiftool -s2 output.
type Tags map[string]string

// ReadTags parses "Name: value" lines into a Tags map. A duplicate tag
// keeps the first value seen; exiftool emits group duplicates for some
// containers.
func ReadTags(r io.Reader) (Tags, error) {
	t := make(Tags, 128)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s := scanner.Text()
		i := strings.Index(s, ":")
		if i < 0 || i >= len(s)-1 || s[i+1] != ' ' {
			return nil, ErrInvalidFormat
		}
		name := strings.TrimRightFunc(s[:i], unicode.IsSpace)
		value := s[i+2:]
		if _, ok := t[name]; ok {
			continue
		}
		t[name] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Make returns the device make, trying the tags exiftool uses across
// vendors.
func (t Tags) Make() string {
	for _, name := range []string{"Make", "CameraMake", "DeviceManufacturer"} {
		if v, ok := t[name]; ok {
			return v
		}
	}
	return ""
}

// Model returns the device model.
func (t Tags) Model() string {
	for _, name := range []string{"Model", "CameraModelName", "DeviceModelName"} {
		if v, ok := t[name]; ok {
			return v
		}
	}
	return ""
}

// Dimensions returns pixel width and height when present.
func (t Tags) Dimensions() (w, h int, err error) {
	w, err = t.intTag("ImageWidth", "ExifImageWidth")
	if err != nil {
		return 0, 0, err
	}
	h, err = t.intTag("ImageHeight", "ExifImageHeight")
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func (t Tags) intTag(names ...string) (int, error) {
	for _, name := range names {
		v, ok := t[name]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("tag %s: %w", name, err)
		}
		return n, nil
	}
	return 0, ErrTagNotFound
}
