package audio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidLeadID is returned for lead ids that cannot name a recording.
var ErrInvalidLeadID = eris.New("audio: invalid lead id")

// ValidLeadID reports whether id is safe to use in a recording file name.
func ValidLeadID(id string) bool {
	return id != "" && id != "." && !strings.Contains(id, "..") && !strings.ContainsAny(id, "/\\\x00")
}

// Recordings stores uploaded call audio on local disk.
type Recordings struct {
	dir string
}

// NewRecordings returns a store rooted at dir.
func NewRecordings(dir string) *Recordings {
	if dir == "" {
		dir = "uploads"
	}
	return &Recordings{dir: dir}
}

// Path returns where a recording for leadID named filename is kept:
// {dir}/{leadID}_{basename}.
func (r *Recordings) Path(leadID, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "recording"
	}
	return filepath.Join(r.dir, leadID+"_"+base)
}

// Save writes audio and returns its path. An existing recording with the
// same name is replaced. The path never leaves the upload dir.
func (r *Recordings) Save(leadID, filename string, audio []byte) (string, error) {
	if !ValidLeadID(leadID) {
		return "", eris.Wrapf(ErrInvalidLeadID, "audio: lead id %q", leadID)
	}
	path := r.Path(leadID, filename)
	if !r.contains(path) {
		return "", eris.Wrapf(ErrInvalidLeadID, "audio: %s is outside %s", path, r.dir)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "audio: create upload dir %s", r.dir)
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", eris.Wrapf(err, "audio: write %s", path)
	}
	return path, nil
}

func (r *Recordings) contains(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(r.dir), filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
