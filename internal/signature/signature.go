// Package signature builds whitespace-insensitive fingerprints of text files so a
// template can be compared with the copy living in a remote repository.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// BranchPrefix prefixes every branch created for a template version
const BranchPrefix = "volatile_"

// FromContent strips surrounding whitespace from every line, drops inner spaces
// and concatenates the result
func FromContent(content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(line), " ", ""))
	}
	return b.String()
}

// FromFile reads the template at path and returns its signature and raw content
func FromFile(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read template %s: %w", path, err)
	}
	content := string(data)
	return FromContent(content), content, nil
}

// Matches reports whether the remote file already carries the template.
// Updates append the template, so containment is enough.
func Matches(template, remote string) bool {
	return strings.Contains(remote, template)
}

// BranchName derives the branch used to propose one template version
func BranchName(sig string) string {
	sum := sha256.Sum256([]byte(sig))
	return BranchPrefix + hex.EncodeToString(sum[:])
}

// Merge appends the template to the existing remote content
func Merge(existing, template string) string {
	return existing + "\n" + template
}
