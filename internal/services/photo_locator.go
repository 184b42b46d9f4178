package services

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
)

const maxPhotoBytes = 8 << 20

var errPhotoTooLarge = errors.New("photo locator: photo exceeds size limit")

// PhotoLocator resolves loosely specified photo references against the uploads directory.
type PhotoLocator struct {
	fs billy.Filesystem
}

// NewPhotoLocator returns a locator over fs, which is rooted at the uploads directory.
func NewPhotoLocator(fs billy.Filesystem) *PhotoLocator {
	return &PhotoLocator{fs: fs}
}

// Locate returns the uploads-relative path of the file ref points at. Strategies are tried in
// order and the first hit wins:
//
//  1. ref with upload prefixes and leading slashes removed
//  2. the basename of that cleaned reference
//  3. ref exactly as given
//  4. a directory entry equal to the basename, ignoring case
//  5. a directory entry containing, or contained in, the basename, ignoring case
//  6. a directory entry starting with the reference's first "-" separated token plus "-"
//
// Filesystem errors are treated as misses.
func (l *PhotoLocator) Locate(ref string) (string, bool) {
	if l == nil || l.fs == nil {
		return "", false
	}
	raw := strings.TrimSpace(ref)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return "", false
	}
	cleaned := stripUploadPrefix(raw)
	base := path.Base(cleaned)
	if base == "." || base == "/" {
		base = ""
	}

	for _, candidate := range []string{cleaned, base, raw} {
		if l.isFile(candidate) {
			return path.Clean(strings.TrimPrefix(candidate, "/")), true
		}
	}
	if base == "" {
		return "", false
	}

	names := l.listNames()
	lowerBase := strings.ToLower(base)
	for _, name := range names {
		if strings.ToLower(name) == lowerBase {
			return name, true
		}
	}
	for _, name := range names {
		lowerName := strings.ToLower(name)
		if strings.Contains(lowerName, lowerBase) || strings.Contains(lowerBase, lowerName) {
			return name, true
		}
	}
	prefix := strings.ToLower(strings.SplitN(base, "-", 2)[0])
	if prefix != "" {
		for _, name := range names {
			if strings.HasPrefix(strings.ToLower(name), prefix+"-") {
				return name, true
			}
		}
	}
	return "", false
}

// DataURL reads the located file and encodes it as a data URL for inline embedding.
func (l *PhotoLocator) DataURL(photoPath string) (string, error) {
	f, err := l.fs.Open(photoPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxPhotoBytes {
		return "", errPhotoTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", errors.New("photo locator: not an image")
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (l *PhotoLocator) isFile(name string) bool {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return false
	}
	if name = path.Clean(name); name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return false
	}
	info, err := l.fs.Stat(name)
	return err == nil && !info.IsDir()
}

func (l *PhotoLocator) listNames() []string {
	entries, err := l.fs.ReadDir("/")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func stripUploadPrefix(ref string) string {
	ref = strings.ReplaceAll(ref, "\\", "/")
	for {
		switch {
		case strings.HasPrefix(ref, "/uploads/"):
			ref = strings.TrimPrefix(ref, "/uploads/")
		case strings.HasPrefix(ref, "uploads/"):
			ref = strings.TrimPrefix(ref, "uploads/")
		case strings.HasPrefix(ref, "/"):
			ref = strings.TrimPrefix(ref, "/")
		default:
			return ref
		}
	}
}
