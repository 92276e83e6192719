package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"job_scrooper/models"
)

// DescriptionPrefixLen is how much of the cleaned description takes part
// in a fingerprint.
const DescriptionPrefixLen = 500

const separator = "|"

// Fingerprint identifies a posting across sources and re-ingestions. It
// depends only on title, company, location and the start of the cleaned
// description, compared case-insensitively after trimming.
func Fingerprint(job *models.NormalizedJob) string {
	input := strings.Join([]string{
		key(job.Title),
		key(job.Company),
		key(job.LocationOrEmpty()),
		truncateRunes(key(job.DescriptionClean), DescriptionPrefixLen),
	}, separator)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
