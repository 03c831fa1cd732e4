package fs

import (
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// DefaultMimeType is used when nothing better is known about a file
const DefaultMimeType = "application/octet-stream"

// DefaultMimeOverrides are the extensions whose MIME type is forced
// regardless of what the platform table says.
var DefaultMimeOverrides = map[string]string{
	".glb": "model/gltf-binary",
}

// ErrInvalidMimeOverride is returned for a malformed ext=type override
var ErrInvalidMimeOverride = errors.New("invalid mime type override")

// MimeTable resolves MIME types from file names.
//
// The overrides are consulted first, then the platform table.  The
// table must not be changed once requests are being served.
type MimeTable struct {
	overrides map[string]string
	detect    bool
}

// NewMimeTable makes a MimeTable seeded with DefaultMimeOverrides plus
// any "ext=type" overrides passed in.
func NewMimeTable(overrides ...string) (*MimeTable, error) {
	t := &MimeTable{
		overrides: make(map[string]string, len(DefaultMimeOverrides)+len(overrides)),
	}
	for ext, mimeType := range DefaultMimeOverrides {
		t.overrides[ext] = mimeType
	}
	for _, override := range overrides {
		ext, mimeType, ok := strings.Cut(override, "=")
		if !ok {
			return nil, errors.Wrapf(ErrInvalidMimeOverride, "%q: expecting ext=type", override)
		}
		if err := t.Add(ext, mimeType); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add sets the MIME type for ext, which may be given with or without
// the leading ".".
func (t *MimeTable) Add(ext, mimeType string) error {
	ext = strings.ToLower(strings.TrimSpace(ext))
	mimeType = strings.TrimSpace(mimeType)
	if ext == "" || ext == "." {
		return errors.Wrap(ErrInvalidMimeOverride, "empty extension")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if _, _, err := mime.ParseMediaType(mimeType); err != nil || !strings.ContainsRune(mimeType, '/') {
		return errors.Wrapf(ErrInvalidMimeOverride, "bad type %q for %q", mimeType, ext)
	}
	t.overrides[ext] = mimeType
	return nil
}

// SetDetect controls whether FromContent sniffs files whose extension
// gives no answer.
func (t *MimeTable) SetDetect(detect bool) {
	t.detect = detect
}

// TypeByExtension returns the MIME type for ext or "" if unknown
func (t *MimeTable) TypeByExtension(ext string) string {
	if ext == "" {
		return ""
	}
	if mimeType, ok := t.overrides[strings.ToLower(ext)]; ok {
		return mimeType
	}
	mimeType := mime.TypeByExtension(ext)
	if !strings.ContainsRune(mimeType, '/') {
		return ""
	}
	return mimeType
}

// FromName returns a guess at the MIME type from the name
func (t *MimeTable) FromName(remote string) string {
	if mimeType := t.TypeByExtension(path.Ext(remote)); mimeType != "" {
		return mimeType
	}
	return DefaultMimeType
}

// FromContent works like FromName but if the name gives no answer and
// detection is enabled it sniffs the start of in.
//
// in is left positioned at the start.
func (t *MimeTable) FromContent(remote string, in io.ReadSeeker) (string, error) {
	mimeType := t.FromName(remote)
	if mimeType != DefaultMimeType || !t.detect {
		return mimeType, nil
	}
	detected, err := mimetype.DetectReader(in)
	if _, seekErr := in.Seek(0, io.SeekStart); seekErr != nil {
		return "", errors.Wrap(seekErr, "failed to rewind after content detection")
	}
	if err != nil {
		return "", errors.Wrap(err, "content detection failed")
	}
	return detected.String(), nil
}
