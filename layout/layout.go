// Package layout holds the naming rules of the archive tree: media and
// hardware vocabularies, the canonical filename grammar, directory
// derivation for locations and the folder plan. Everything here is pure
// so the rules can be tested without touching a filesystem.
package layout

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bizzlechizzle/aupat-sub000/content"
)

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
	MediaMap      MediaType = "map"
	MediaOther    MediaType = "other"
)

type Hardware string

const (
	HardwareCamera  Hardware = "camera"
	HardwarePhone   Hardware = "phone"
	HardwareDrone   Hardware = "drone"
	HardwareAction  Hardware = "action"
	HardwareDashCam Hardware = "dashcam"
	HardwareFilm    Hardware = "film"
	HardwareOther   Hardware = "other"
)

// AllHardware lists every hardware category in folder order.
var AllHardware = []Hardware{
	HardwareCamera,
	HardwarePhone,
	HardwareDrone,
	HardwareAction,
	HardwareDashCam,
	HardwareFilm,
	HardwareOther,
}

var imageExts = extSet("jpg,jpeg,png,gif,bmp,tif,tiff,webp,heic,heif,raw,cr2,nef,arw,dng,orf,rw2")

var videoExts = extSet("mp4,mov,avi,mkv,wmv,flv,webm,m4v,mpg,mpeg,mts,m2ts,3gp")

// junkExts are extensions that are clearly not archivable documents;
// everything else unknown is treated as a document rather than rejected.
var junkExts = extSet("exe,dll,so,dylib,sys,tmp,lock,ini,db,ds_store,thumbs")

func extSet(list string) map[string]struct{} {
	m := make(map[string]struct{}, 32)
	for _, e := range strings.Split(list, ",") {
		m[e] = struct{}{}
	}
	return m
}

// NormalizeExt lower-cases ext and strips the leading dot.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ClassifyExt maps a file extension to a media type. Unknown extensions
// default to document; only known junk lands in other.
func ClassifyExt(ext string) MediaType {
	e := NormalizeExt(ext)
	if e == "" {
		return MediaOther
	}
	if _, ok := imageExts[e]; ok {
		return MediaImage
	}
	if _, ok := videoExts[e]; ok {
		return MediaVideo
	}
	if _, ok := junkExts[e]; ok {
		return MediaOther
	}
	return MediaDocument
}

var ErrBadFilename = errors.New("bad archive filename")

// Filename builds the canonical archive filename
// {loc8}[-{sub8}]-{hash8}.{ext}. subID may be empty.
func Filename(locID, subID, hash, ext string) string {
	var b strings.Builder
	b.WriteString(content.Short(locID, content.ShortLen))
	if subID != "" {
		b.WriteByte('-')
		b.WriteString(content.Short(subID, content.ShortLen))
	}
	b.WriteByte('-')
	b.WriteString(content.Short(hash, content.ShortLen))
	b.WriteByte('.')
	b.WriteString(NormalizeExt(ext))
	return b.String()
}

// ParsedName is the result of ParseFilename. SubShort is empty for the
// two-segment form.
type ParsedName struct {
	LocShort  string
	SubShort  string
	HashShort string
	Ext       string
}

// ParseFilename splits a canonical filename back into its segments,
// accepting both the 2-segment and 3-segment (sub-location) forms.
func ParseFilename(name string) (ParsedName, error) {
	ext := filepath.Ext(name)
	if ext == "" || ext == "." {
		return ParsedName{}, fmt.Errorf("%w: %q has no extension", ErrBadFilename, name)
	}
	base := strings.TrimSuffix(name, ext)
	segs := strings.Split(base, "-")
	for _, s := range segs {
		if !isHex8(s) {
			return ParsedName{}, fmt.Errorf("%w: %q segment %q is not 8 hex characters", ErrBadFilename, name, s)
		}
	}
	p := ParsedName{Ext: NormalizeExt(ext)}
	switch len(segs) {
	case 2:
		p.LocShort, p.HashShort = segs[0], segs[1]
	case 3:
		p.LocShort, p.SubShort, p.HashShort = segs[0], segs[1], segs[2]
	default:
		return ParsedName{}, fmt.Errorf("%w: %q has %d segments", ErrBadFilename, name, len(segs))
	}
	return p, nil
}

func isHex8(s string) bool {
	if len(s) != content.ShortLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

const maxNameLen = 16

// Sanitize lower-cases s, turns runs of spaces and punctuation into
// single hyphens and truncates to a path-safe short name.
func Sanitize(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxNameLen {
		out = strings.Trim(out[:maxNameLen], "-")
	}
	return out
}

// LocationDir derives the two-level directory for a location relative to
// the archive root: <state>-<type>/<short_name>_<loc8>.
func LocationDir(state, typ, name, locID string) string {
	return filepath.Join(
		Sanitize(state)+"-"+Sanitize(typ),
		Sanitize(name)+"_"+content.Short(locID, content.ShortLen),
	)
}

// StagingDir is the per-location holding area under the staging root.
func StagingDir(stagingRoot, locID string) string {
	return filepath.Join(stagingRoot, content.Short(locID, content.ShortLen))
}

// MediaDir returns the archive directory for a record of the given type
// and hardware category, relative to the location base directory.
func MediaDir(base string, mt MediaType, hw Hardware) string {
	switch mt {
	case MediaImage:
		return filepath.Join(base, "photos", "original_"+string(hw))
	case MediaVideo:
		return filepath.Join(base, "videos", "original_"+string(hw))
	default:
		return filepath.Join(base, "documents")
	}
}

// Counts carries the per-category media counts the folder plan is
// derived from.
type Counts struct {
	Images    map[Hardware]int64
	Videos    map[Hardware]int64
	Documents int64
}

// PlanFolders returns the sorted set of directories that must exist for
// the given counts: the base directory unconditionally, media subfolders
// only where at least one file exists. Pure; the caller mkdirs.
func PlanFolders(base string, c Counts) []string {
	dirs := []string{base}
	for _, hw := range AllHardware {
		if c.Images[hw] > 0 {
			dirs = append(dirs, MediaDir(base, MediaImage, hw))
		}
		if c.Videos[hw] > 0 {
			dirs = append(dirs, MediaDir(base, MediaVideo, hw))
		}
	}
	if c.Documents > 0 {
		dirs = append(dirs, MediaDir(base, MediaDocument, HardwareOther))
	}
	sort.Strings(dirs)
	return dirs
}
