package browser

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadCookieFileMissing(t *testing.T) {
	// WHAT: An absent cookie jar yields an empty jar, not an error.
	// WHY: Sessions run unauthenticated when no captured login exists.
	records, err := ReadCookieFile(filepath.Join(t.TempDir(), "cookies.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records: got %d, want 0", len(records))
	}
}

func TestReadCookieFilePuppeteerShape(t *testing.T) {
	// WHAT: The Puppeteer export format parses field-for-field.
	// WHY: Operators capture the jar with browser tooling, not this system.
	path := filepath.Join(t.TempDir(), "cookies.json")
	data := `[{"name":"m-b","value":"abc123","domain":".quora.com","path":"/","expires":1790000000.5,"httpOnly":true,"secure":true}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	records, err := ReadCookieFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
	c := records[0]
	if c.Name != "m-b" || c.Value != "abc123" || c.Domain != ".quora.com" {
		t.Errorf("cookie fields: got %+v", c)
	}
	if !c.HTTPOnly || !c.Secure || c.Expires != 1790000000.5 {
		t.Errorf("cookie flags: got %+v", c)
	}
}

func TestReadCookieFileMalformed(t *testing.T) {
	// WHAT: A corrupt jar is an explicit error.
	// WHY: Silently ignoring it would look like a logged-out session bug.
	path := filepath.Join(t.TempDir(), "cookies.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := ReadCookieFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
