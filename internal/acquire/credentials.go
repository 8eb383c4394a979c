package acquire

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const cookieFileName = "cookies.txt"

// Credentials point at a Netscape cookie bundle, either inline as base64 or
// as a file on disk.
type Credentials struct {
	CookiesB64  string
	CookiesFile string
}

func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.CookiesB64) == "" && strings.TrimSpace(c.CookiesFile) == ""
}

// Materialize writes a private copy of the cookie bundle into dir and returns
// its path, or "" when no credentials are configured. yt-dlp rewrites the
// cookie file it is given, so the configured file is never passed directly.
func (c Credentials) Materialize(dir string) (string, error) {
	var content []byte
	switch {
	case strings.TrimSpace(c.CookiesB64) != "":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.CookiesB64))
		if err != nil {
			return "", fmt.Errorf("decode cookie bundle: %w", err)
		}
		content = decoded
	case strings.TrimSpace(c.CookiesFile) != "":
		raw, err := os.ReadFile(c.CookiesFile)
		if err != nil {
			return "", fmt.Errorf("read cookie file: %w", err)
		}
		content = raw
	default:
		return "", nil
	}

	if len(content) == 0 {
		return "", fmt.Errorf("cookie bundle is empty")
	}

	path := filepath.Join(dir, cookieFileName)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("write cookie file: %w", err)
	}
	return path, nil
}
