package process

import "strings"

const keySep = ":"

// Key builds the registry key for a process playing role for a project.
func Key(projectID, role string) string {
	return projectID + keySep + role
}

// MatchProject returns a predicate selecting every key owned by projectID:
// the bare project id, "<project>:<role>" and "<role>:<project>".
func MatchProject(projectID string) func(key string) bool {
	prefix := projectID + keySep
	suffix := keySep + projectID
	return func(key string) bool {
		return key == projectID || strings.HasPrefix(key, prefix) || strings.HasSuffix(key, suffix)
	}
}
