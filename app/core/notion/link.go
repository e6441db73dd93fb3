package notion

import (
	"regexp"
	"strings"
)

var taskURLPattern = regexp.MustCompile(`https://(?:www\.)?([a-zA-Z0-9-]+\.)?notion\.(?:so|site)/[^\s<>)\]]+`)

// ExtractTaskURL returns the first task-page URL found in free text, or ""
// when none is present.
func ExtractTaskURL(content string) string {
	return taskURLPattern.FindString(content)
}

// BelongsToWorkspace reports whether a task URL points into the given
// workspace. Links into other workspaces must not be trusted as evidence
// that a task exists for a thread.
func BelongsToWorkspace(url, slug string) bool {
	if url == "" || slug == "" {
		return false
	}
	lowered := strings.ToLower(url)
	slug = strings.ToLower(slug)
	return strings.Contains(lowered, "//"+slug+".notion.") ||
		strings.Contains(lowered, "notion.so/"+slug+"/") ||
		strings.Contains(lowered, "notion.site/"+slug+"/")
}
