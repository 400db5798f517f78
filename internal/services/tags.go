package services

import "strings"

// ParseTags splits comma-delimited tag input, trims every token and drops empty ones. Order and
// duplicates are kept. The result is never nil.
func ParseTags(raw string) []string {
	tags := []string{}
	for _, token := range strings.Split(raw, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tags = append(tags, token)
		}
	}
	return tags
}
