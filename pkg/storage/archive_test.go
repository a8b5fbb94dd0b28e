package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, err := readObject(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// readObject returns the object bytes of a PUT, unwrapping the aws-chunked
// framing clients use for streaming signatures over plain HTTP.
func readObject(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	streaming := strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") ||
		strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked")
	if !streaming {
		return raw, nil
	}
	return decodeAWSChunked(raw)
}

func decodeAWSChunked(raw []byte) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	var out bytes.Buffer
	for {
		header, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		header = strings.TrimRight(header, "\r\n")
		size, _, _ := strings.Cut(header, ";")
		n, err := strconv.ParseInt(strings.TrimSpace(size), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", size, err)
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, fmt.Errorf("chunk data: %w", err)
		}
		if _, err := br.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk trailer: %w", err)
		}
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	framed := "1f;chunk-signature=8cec\r\n{\"id\":\"a1\",\"status\":\"RESOLVED\"}\r\n0;chunk-signature=ffee\r\n\r\n"
	got, err := decodeAWSChunked([]byte(framed))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != `{"id":"a1","status":"RESOLVED"}` {
		t.Fatalf("decoded = %q", got)
	}
}

func TestMinioArchiveStoresJSONSnapshot(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	u, _ := url.Parse(srv.URL)

	archive, err := NewMinioArchive(context.Background(), MinioConfig{
		Endpoint:  u.Host,
		AccessKey: "access",
		SecretKey: "secret-secret",
		Bucket:    "carelink-archive",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}

	snapshot := map[string]string{"id": "a1", "status": "RESOLVED"}
	if err := archive.Store(context.Background(), AlertKey("a1"), snapshot); err != nil {
		t.Fatalf("store: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	body, ok := fake.objects["/carelink-archive/alerts/a1.json"]
	if !ok {
		t.Fatalf("object not written, have %v", fake.objects)
	}
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("stored body is not json: %v", err)
	}
	if got["status"] != "RESOLVED" {
		t.Fatalf("unexpected snapshot: %v", got)
	}
	if ct := fake.types["/carelink-archive/alerts/a1.json"]; ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestNewMinioArchiveRequiresBucket(t *testing.T) {
	if _, err := NewMinioArchive(context.Background(), MinioConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error")
	}
}
