package discovery

import (
	"fmt"
	"sort"

	"frameworks/api_compose/pkg/models"
)

// ResolveConflicts deduplicates discovered files by project name. Per name:
// exactly one active file wins; a group that is entirely disabled is
// dropped without comment; two or more active files produce a conflict and
// no winner. The resolved list and the conflicts are one atomic result —
// there is no carried state between calls.
//
// Grouping is case-sensitive. Matching against live projects folds case,
// but two files differing only in name case are distinct projects here.
func ResolveConflicts(files []models.ComposeFile) ([]models.ComposeFile, []models.Conflict) {
	groups := make(map[string][]models.ComposeFile)
	order := make([]string, 0, len(files))
	for _, f := range files {
		if _, seen := groups[f.ProjectName]; !seen {
			order = append(order, f.ProjectName)
		}
		groups[f.ProjectName] = append(groups[f.ProjectName], f)
	}

	resolved := make([]models.ComposeFile, 0, len(groups))
	var conflicts []models.Conflict

	for _, name := range order {
		group := groups[name]

		var active []models.ComposeFile
		for _, f := range group {
			if !f.Disabled {
				active = append(active, f)
			}
		}

		switch len(active) {
		case 0:
			// Deliberately disabled project, not an error.
			continue
		case 1:
			resolved = append(resolved, active[0])
		default:
			conflicts = append(conflicts, newConflict(name, group))
		}
	}

	return resolved, conflicts
}

// newConflict records one naming collision, listing every file in the
// group so the operator sees disabled members too.
func newConflict(name string, group []models.ComposeFile) models.Conflict {
	paths := make([]string, 0, len(group))
	for _, f := range group {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)

	return models.Conflict{
		ProjectName: name,
		Paths:       paths,
		Message:     fmt.Sprintf("Multiple active compose files define project %q", name),
		Resolution: []string{
			fmt.Sprintf("Keep exactly one active compose file for project %q", name),
			fmt.Sprintf("Add '%s: true' to the files that should not be used", DisableFlag),
			"Rescan after editing so the change takes effect",
		},
	}
}
