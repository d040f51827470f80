package discovery

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"frameworks/api_compose/pkg/models"
)

// DisableFlag is the top-level extension field that excludes a compose file
// from matching without deleting it.
const DisableFlag = "x-stevedore-disabled"

// Canonical compose file names. A file with one of these names takes its
// project name from its directory.
var canonicalNames = map[string]bool{
	"docker-compose.yml":  true,
	"docker-compose.yaml": true,
	"compose.yml":         true,
	"compose.yaml":        true,
}

// composeDoc is the subset of a compose file the scanner cares about.
// Services stays a raw node so declaration order survives decoding.
type composeDoc struct {
	Name     string    `yaml:"name"`
	Services yaml.Node `yaml:"services"`
	Disabled bool      `yaml:"x-stevedore-disabled"`
}

// parseComposeFile decodes one candidate file. It returns nil for anything
// that is not a usable project definition: undecodable YAML, a missing or
// empty services mapping. Those files are excluded, not errors.
// Interpolation placeholders (${VAR}) in values are plain strings at this
// layer and do not affect validity.
func parseComposeFile(path string, info os.FileInfo) *models.ComposeFile {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var doc composeDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil
	}

	services := serviceNames(&doc.Services)
	if len(services) == 0 {
		return nil
	}

	var modTime time.Time
	var size int64
	if info != nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	return &models.ComposeFile{
		Path:        path,
		Directory:   filepath.Dir(path),
		ProjectName: resolveProjectName(path, doc.Name),
		Services:    services,
		Disabled:    doc.Disabled,
		Size:        size,
		ModTime:     modTime,
	}
}

// serviceNames extracts top-level service keys in declaration order.
func serviceNames(node *yaml.Node) []string {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}

	names := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Kind != yaml.ScalarNode {
			continue
		}
		// YAML merge keys are not services.
		if key.Value == "<<" {
			continue
		}
		names = append(names, key.Value)
	}
	return names
}

// resolveProjectName derives a project name from an explicit name field or
// the file's location:
//
//  1. an explicit top-level name wins;
//  2. canonical file names (docker-compose.yml and friends) name the
//     project after the containing directory;
//  3. a file named after its directory collapses to the directory name,
//     avoiding "app-app";
//  4. anything else combines directory and file stem, so several
//     non-standard files in one directory get distinct names.
func resolveProjectName(path string, explicit string) string {
	if explicit != "" {
		return explicit
	}

	base := filepath.Base(path)
	dir := filepath.Base(filepath.Dir(path))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if canonicalNames[strings.ToLower(base)] {
		return dir
	}
	if strings.EqualFold(stem, dir) {
		return dir
	}
	return dir + "-" + stem
}
