package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha256Hex(t *testing.T) {
	input := "hello world\n"
	got, err := sha256Hex(strings.NewReader(input))
	require.NoError(t, err)

	h := sha256.Sum256([]byte(input))
	assert.Equal(t, hex.EncodeToString(h[:]), got)
}

func TestSha256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	data := []byte("flowlens test data")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := sha256File(path)
	require.NoError(t, err)

	h := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(h[:]), got)

	_, err = sha256File("/nonexistent/file")
	assert.Error(t, err)
}

func TestParseChecksumFile(t *testing.T) {
	const hash = "abc123def456abc123def456abc123def456abc123def456abc123def456abcd"
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "two-space format",
			input: hash + "  mermaid-ascii_Darwin_arm64.tar.gz\n" + strings.ToUpper(hash) + "  mermaid-ascii_Linux_x86_64.tar.gz\n",
			want: map[string]string{
				"mermaid-ascii_Darwin_arm64.tar.gz": hash,
				"mermaid-ascii_Linux_x86_64.tar.gz": hash,
			},
		},
		{
			name:  "binary marker",
			input: hash + " *file.tar.gz\n",
			want:  map[string]string{"file.tar.gz": hash},
		},
		{
			name:  "blank and malformed lines",
			input: "\n  \nabc123\nabc123  file.tar.gz\n",
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChecksumFile(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchChecksums(t *testing.T) {
	const hash = "fedcba98fedcba98fedcba98fedcba98fedcba98fedcba98fedcba98fedcba98"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checksums.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(hash + "  mermaid-ascii_Linux_i386.tar.gz\n"))
	}))
	defer srv.Close()

	sums, err := fetchChecksums(context.Background(), srv.Client(), srv.URL+"/checksums.txt")
	require.NoError(t, err)
	assert.Equal(t, hash, sums["mermaid-ascii_Linux_i386.tar.gz"])

	_, err = fetchChecksums(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "returned 404")
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractTarGz(t *testing.T) {
	files := map[string]string{"README.md": "docs"}
	files["mermaid-ascii_1.1.0/mermaid-ascii"] = "#!/bin/sh\necho graph\n"
	archive := tarGz(t, files)
	dir := t.TempDir()

	require.NoError(t, extractTarGz(bytes.NewReader(archive), dir, "mermaid-ascii"))
	data, err := os.ReadFile(filepath.Join(dir, "mermaid-ascii"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho graph\n", string(data))

	err = extractTarGz(bytes.NewReader(archive), dir, "missing")
	assert.ErrorContains(t, err, `file "missing" not found`)

	err = extractTarGz(strings.NewReader("not gzip"), dir, "mermaid-ascii")
	assert.ErrorContains(t, err, "gzip")
}

func TestMermaidASCIIAssetName(t *testing.T) {
	name, err := mermaidASCIIAssetName("linux", "amd64")
	require.NoError(t, err)
	assert.Equal(t, "mermaid-ascii_Linux_x86_64.tar.gz", name)

	name, err = mermaidASCIIAssetName("darwin", "arm64")
	require.NoError(t, err)
	assert.Equal(t, "mermaid-ascii_Darwin_arm64.tar.gz", name)

	_, err = mermaidASCIIAssetName("windows", "amd64")
	assert.ErrorContains(t, err, "unsupported OS")
	_, err = mermaidASCIIAssetName("linux", "riscv64")
	assert.ErrorContains(t, err, "unsupported architecture")
}

func TestInstallMermaidASCII_AlreadyInstalled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mermaid-ascii"), []byte("bin"), 0o755))

	var out bytes.Buffer
	require.NoError(t, installMermaidASCII(context.Background(), http.DefaultClient, dir, &out))
	assert.Contains(t, out.String(), "already installed")
}

type fakeDoer struct {
	body []byte
}

func (f fakeDoer) Do(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	_, _ = rec.Write(f.body)
	return rec.Result(), nil
}

func TestInstallMermaidASCII_ChecksumMismatch(t *testing.T) {
	if _, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH); err != nil {
		t.Skip("platform has no mermaid-ascii release")
	}
	dir := t.TempDir()
	client := fakeDoer{body: tarGz(t, map[string]string{"mermaid-ascii": "tampered"})}

	var out bytes.Buffer
	err := installMermaidASCII(context.Background(), client, dir, &out)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "mermaid-ascii"))

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "temp download is removed")
}
