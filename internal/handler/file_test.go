package handler

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestDecodeUploadJSON(t *testing.T) {
	raw := []byte("hello, world")
	body := `{"sender":"alice","filename":"hi.txt","content_type":"text/plain","data":"` +
		base64.StdEncoding.EncodeToString(raw) + `"}`

	req, data, err := decodeUploadJSON(strings.NewReader(body), 1024)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Sender != "alice" || req.Filename != "hi.txt" || req.ContentType != "text/plain" {
		t.Errorf("fields: %+v", req)
	}
	if !bytes.Equal(data, raw) {
		t.Errorf("data: got %q, want %q", data, raw)
	}
}

func TestDecodeUploadJSONRejectsBadBase64(t *testing.T) {
	_, _, err := decodeUploadJSON(strings.NewReader(`{"sender":"a","filename":"f","data":"%%%"}`), 1024)
	if err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestDecodeUploadJSONRejectsMissingData(t *testing.T) {
	_, _, err := decodeUploadJSON(strings.NewReader(`{"sender":"a","filename":"f"}`), 1024)
	if err == nil {
		t.Fatal("expected error for missing data")
	}
}

// Лимит размера действует после декодирования, а не по длине base64-строки.
func TestDecodeUploadJSONSizeCapAfterDecode(t *testing.T) {
	raw := bytes.Repeat([]byte("x"), 100)
	body := `{"sender":"a","filename":"f","data":"` + base64.StdEncoding.EncodeToString(raw) + `"}`

	if _, _, err := decodeUploadJSON(strings.NewReader(body), 99); !errors.Is(err, errUploadTooLarge) {
		t.Fatalf("cap 99: got %v, want errUploadTooLarge", err)
	}
	if _, _, err := decodeUploadJSON(strings.NewReader(body), 100); err != nil {
		t.Fatalf("cap 100: %v", err)
	}
}
