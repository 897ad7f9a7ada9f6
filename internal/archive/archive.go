package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"prepdeck/internal/domain"
)

// ErrUnsupportedExtension is returned for uploads outside the video allow-list.
var ErrUnsupportedExtension = fmt.Errorf("unsupported video extension")

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mov":  {},
	".mkv":  {},
	".avi":  {},
}

// Archive stores recorded answer videos on disk. Artifact names derive from
// the compound key, so a repeated upload for the same key lands on the same
// name and replaces the previous recording.
type Archive struct {
	root string
}

func New(root string) (*Archive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create answers dir: %w", err)
	}
	return &Archive{root: root}, nil
}

// Root returns the directory artifacts are written to.
func (a *Archive) Root() string {
	return a.root
}

// ArtifactName computes the deterministic file name for a key tuple.
func ArtifactName(identity domain.SessionIdentity, question int, ext string) string {
	return fmt.Sprintf("%s_%d_%d%s", sanitizeComponent(identity.Username), question, identity.SessionTime, ext)
}

// Store writes the video bytes under the key-derived name. The bytes go to a
// temp file in the same directory first and are renamed over the final name,
// so a half-written artifact is never visible and a failed write leaves any
// prior artifact intact.
func (a *Archive) Store(identity domain.SessionIdentity, question int, ext string, r io.Reader) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		ext = ".webm"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if _, ok := videoExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedExtension, ext)
	}

	final := filepath.Join(a.root, ArtifactName(identity, question, ext))
	tmp := filepath.Join(a.root, ".tmp-"+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	return final, nil
}

// sanitizeComponent strips anything that could escape the archive directory
// or break the {username}_{question}_{timestamp} naming scheme.
func sanitizeComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
