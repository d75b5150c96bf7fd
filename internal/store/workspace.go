package store

import "strings"

const defaultWorkspace = "default"

// normalizeWorkspace maps blank workspace names onto the default so every
// table keyed by (repo_id, workspace) sees one canonical value.
func normalizeWorkspace(workspace string) string {
	ws := strings.TrimSpace(workspace)
	if ws == "" {
		return defaultWorkspace
	}
	return ws
}
