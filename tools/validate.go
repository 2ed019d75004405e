package tools

import (
	"fmt"
	"strings"
)

const (
	maxBodySize       = 10 * 1024 * 1024 // 10 MB
	maxSubjectSize    = 998              // RFC 2822 line length limit
	maxAttachmentSize = 25 * 1024 * 1024 // Gmail's per-message limit
)

// validateBodySize checks that body content doesn't exceed limits.
func validateBodySize(body string) error {
	if len(body) > maxBodySize {
		return fmt.Errorf("message exceeds maximum size of %d bytes", maxBodySize)
	}
	return nil
}

// validateSubjectSize checks that subject doesn't exceed limits.
func validateSubjectSize(subject string) error {
	if len(subject) > maxSubjectSize {
		return fmt.Errorf("subject exceeds maximum length of %d characters", maxSubjectSize)
	}
	return nil
}

func validateAttachmentSize(total int) error {
	if total > maxAttachmentSize {
		return fmt.Errorf("attachments exceed maximum total size of %d bytes", maxAttachmentSize)
	}
	return nil
}

// validateFilename rejects filenames with path traversal characters.
func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("filename must not contain null bytes")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("filename must not contain path separators")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("filename must not contain '..'")
	}
	return nil
}
