package backup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{
			name:    "bucket only",
			raw:     "s3://my-bucket",
			wantBkt: "my-bucket",
			wantPre: "",
		},
		{
			name:    "bucket with prefix",
			raw:     "s3://my-bucket/displaylog/backups/",
			wantBkt: "my-bucket",
			wantPre: "displaylog/backups",
		},
		{
			name:      "invalid scheme",
			raw:       "https://my-bucket/displaylog",
			wantErr:   true,
			errSubstr: "s3:// scheme",
		},
		{
			name:      "missing bucket",
			raw:       "s3:///displaylog",
			wantErr:   true,
			errSubstr: "missing bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt {
				t.Fatalf("bucket = %q, want %q", gotBkt, tt.wantBkt)
			}
			if gotPre != tt.wantPre {
				t.Fatalf("prefix = %q, want %q", gotPre, tt.wantPre)
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{in: "", want: ""},
		{in: "minio:9000", useSSL: false, want: "http://minio:9000"},
		{in: "s3.amazonaws.com", useSSL: true, want: "https://s3.amazonaws.com"},
		{in: "http://already:1", useSSL: true, want: "http://already:1"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(S3Config{
		BucketURL: "s3://my-bucket/displaylog",
		Endpoint:  "s3.amazonaws.com",
		UseSSL:    true,
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestS3Uploader_ObjectKey(t *testing.T) {
	t.Parallel()

	u, err := NewS3Uploader(S3Config{
		BucketURL: "s3://my-bucket/devices/frame-1",
		AccessKey: "ak",
		SecretKey: "sk",
	})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	got := u.ObjectKey("/var/backups/displaylog-20250301-080000.000.xml")
	if got != "devices/frame-1/displaylog-20250301-080000.000.xml" {
		t.Fatalf("ObjectKey = %q", got)
	}
}

func TestS3Uploader_PutsToEndpoint(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	localPath := filepath.Join(t.TempDir(), "displaylog-20250301-080000.000.xml")
	if err := os.WriteFile(localPath, []byte("<display></display>\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	u, err := NewS3Uploader(S3Config{
		BucketURL: "s3://frames/backups",
		Endpoint:  srv.URL,
		AccessKey: "ak",
		SecretKey: "sk",
	})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	if err := u.UploadFile(context.Background(), localPath); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if err := u.UploadFile(context.Background(), localPath); err != nil {
		t.Fatalf("UploadFile #2: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"HEAD /frames",
		"PUT /frames/backups/displaylog-20250301-080000.000.xml",
		"PUT /frames/backups/displaylog-20250301-080000.000.xml",
	}
	if strings.Join(requests, "\n") != strings.Join(want, "\n") {
		t.Fatalf("requests =\n%s\nwant\n%s", strings.Join(requests, "\n"), strings.Join(want, "\n"))
	}
}
