package utils

import (
	"fmt"
	"path"
	"strings"
)

const defaultAttachmentName = "report.pdf"

// AttachmentName turns a stored report file name into a safe download name:
// no directories, no header-breaking characters, always a .pdf suffix.
func AttachmentName(name string) string {
	clean := strings.NewReplacer("\r", "", "\n", "", "\"", "", "\\", "/").Replace(name)
	clean = strings.TrimSpace(path.Base(strings.TrimSpace(clean)))
	if clean == "" || clean == "." || clean == "/" || clean == ".." {
		return defaultAttachmentName
	}
	if !strings.HasSuffix(strings.ToLower(clean), ".pdf") {
		clean += ".pdf"
	}
	return clean
}

// AttachmentDisposition is the Content-Disposition value for a report file.
func AttachmentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=\"%s\"", AttachmentName(name))
}
