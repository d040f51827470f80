package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"frameworks/api_compose/pkg/models"
)

// ScannerConfig bounds a filesystem scan.
type ScannerConfig struct {
	// Root is the directory scanned for compose files.
	Root string
	// DepthLimit is the maximum directory depth. A file directly in the
	// root has depth 1 and a file at exactly the limit is included.
	DepthLimit int
	// MaxFileSize excludes files larger than this many bytes before any
	// read happens.
	MaxFileSize int64
}

// Scanner walks the compose root and parses candidate definition files.
// Files that cannot be parsed, have no services, or exceed the size limit
// are excluded silently; only an unreadable root is an error.
type Scanner struct {
	cfg    ScannerConfig
	logger *logrus.Entry
}

// NewScanner creates a scanner. The root is resolved to an absolute path.
func NewScanner(cfg ScannerConfig, logger *logrus.Entry) (*Scanner, error) {
	abs, err := filepath.Abs(filepath.Clean(cfg.Root))
	if err != nil {
		return nil, fmt.Errorf("resolving scan root: %w", err)
	}
	cfg.Root = abs

	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 3
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 512 * 1024
	}

	return &Scanner{cfg: cfg, logger: logger}, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.cfg.Root
}

// Scan walks the root and returns every usable compose file found, in walk
// order. The context is checked between directory entries so a shutdown
// does not wait out a large tree.
func (s *Scanner) Scan(ctx context.Context) ([]models.ComposeFile, error) {
	var files []models.ComposeFile

	err := filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.cfg.Root {
				return fmt.Errorf("scan root inaccessible: %w", err)
			}
			// Unreadable subtree: exclude and continue.
			s.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		depth := s.depthOf(path)

		if d.IsDir() {
			if path == s.cfg.Root {
				return nil
			}
			// Entries inside this directory would exceed the limit.
			if depth >= s.cfg.DepthLimit {
				return filepath.SkipDir
			}
			return nil
		}

		if depth > s.cfg.DepthLimit {
			return nil
		}
		if !isComposeCandidate(d.Name()) {
			return nil
		}

		// Stat follows symlinks so linked definitions still count.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if info.Size() > s.cfg.MaxFileSize {
			s.logger.WithFields(logrus.Fields{
				"path": path,
				"size": info.Size(),
			}).Debug("Skipping oversized compose file")
			return nil
		}

		if file := parseComposeFile(path, info); file != nil {
			files = append(files, *file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// depthOf counts path components below the root. The root itself is 0.
func (s *Scanner) depthOf(path string) int {
	rel, err := filepath.Rel(s.cfg.Root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// isComposeCandidate matches *.yml and *.yaml case-insensitively.
func isComposeCandidate(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}
