package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in postgres:// and redis:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	// static AWS credentials and presigned URL signatures
	awsSecretPattern    = regexp.MustCompile(`(?i)(aws_secret_access_key|secret_access_key|secretaccesskey)=[^;&\s]+`)
	awsSignaturePattern = regexp.MustCompile(`(?i)(X-Amz-Signature|X-Amz-Credential|X-Amz-Security-Token)=[^&\s]+`)
)

// SanitizeConnectionString removes credentials from a PostgreSQL or Redis
// connection string. Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError strips credentials from database and object store errors,
// which may echo connection strings or presigned URLs.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := SanitizeConnectionString(err.Error())
	sanitized = awsSecretPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return awsSignaturePattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}
