package browser

import (
	"encoding/json"
	"fmt"
	"os"
)

// CookieRecord matches the Puppeteer cookie export format, so a jar captured
// from a manual login session can be dropped in as-is.
type CookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// ReadCookieFile parses a cookie jar file. A missing file yields an empty
// jar: the session simply runs unauthenticated. The jar is never written by
// this system.
func ReadCookieFile(path string) ([]CookieRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("browser: read cookies %s: %w", path, err)
	}
	var records []CookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("browser: parse cookies %s: %w", path, err)
	}
	return records, nil
}
