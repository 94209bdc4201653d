package downloader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/courtfetch/config"
	"github.com/use-agent/courtfetch/models"
)

func newOrderServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/a.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "order one")
	})
	mux.HandleFunc("/files/c.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "order three")
	})
	mux.HandleFunc("/showorder", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "order by id")
	})
	mux.HandleFunc("/files/big.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	})
	mux.HandleFunc("/files/cached.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})
	mux.HandleFunc("/files/accepted.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "queued")
	})
	mux.HandleFunc("/missing.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDownloader(t *testing.T) *Downloader {
	return New(config.DownloadConfig{
		Timeout:      2 * time.Second,
		MaxBodyBytes: 32,
		TempDir:      t.TempDir(),
	})
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	files := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = string(data)
	}
	return files
}

func TestBuildArchive_PartialFailure(t *testing.T) {
	srv := newOrderServer(t)
	d := newTestDownloader(t)

	links := []models.OrderLink{
		{URL: srv.URL + "/files/a.pdf"},
		{URL: srv.URL + "/missing.pdf"},
		{URL: srv.URL + "/files/c.pdf"},
	}
	archive, err := d.BuildArchive(context.Background(), links)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Cleanup() })

	require.Len(t, archive.Entries, 2)
	require.Len(t, archive.Failures, 1)
	require.Equal(t, srv.URL+"/missing.pdf", archive.Failures[0].URL)
	require.NotEmpty(t, archive.ID)

	files := readZip(t, archive.Path)
	require.Equal(t, map[string]string{
		"a.pdf": "order one",
		"c.pdf": "order three",
	}, files)
}

func TestBuildArchive_PositionalNames(t *testing.T) {
	srv := newOrderServer(t)
	d := newTestDownloader(t)

	links := []models.OrderLink{
		{URL: srv.URL + "/missing.pdf"},
		{URL: srv.URL + "/showorder?id=7"},
	}
	archive, err := d.BuildArchive(context.Background(), links)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Cleanup() })

	// The fallback name uses the link's position in the request.
	require.Equal(t, "order_2.pdf", archive.Entries[0].Name)
}

func TestBuildArchive_DuplicateNames(t *testing.T) {
	srv := newOrderServer(t)
	d := newTestDownloader(t)

	links := []models.OrderLink{
		{URL: srv.URL + "/files/a.pdf"},
		{URL: srv.URL + "/files/a.pdf?copy=1"},
		{URL: srv.URL + "/files/a.pdf?copy=2"},
	}
	archive, err := d.BuildArchive(context.Background(), links)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Cleanup() })

	files := readZip(t, archive.Path)
	require.Len(t, files, 3)
	require.Contains(t, files, "a.pdf")
	require.Contains(t, files, "a-2.pdf")
	require.Contains(t, files, "a-3.pdf")
}

func TestBuildArchive_NonSuccessStatusSkipped(t *testing.T) {
	srv := newOrderServer(t)
	d := newTestDownloader(t)

	links := []models.OrderLink{
		{URL: srv.URL + "/files/cached.pdf"},
		{URL: srv.URL + "/files/accepted.pdf"},
	}
	archive, err := d.BuildArchive(context.Background(), links)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Cleanup() })

	require.Len(t, archive.Failures, 1)
	require.Equal(t, srv.URL+"/files/cached.pdf", archive.Failures[0].URL)
	require.Equal(t, map[string]string{"accepted.pdf": "queued"}, readZip(t, archive.Path))
}

func TestBuildArchive_NotModifiedOnlyFails(t *testing.T) {
	srv := newOrderServer(t)
	d := newTestDownloader(t)

	archive, err := d.BuildArchive(context.Background(), []models.OrderLink{{URL: srv.URL + "/files/cached.pdf"}})
	require.Nil(t, archive)
	require.Equal(t, models.ErrCodeAllDownloadsFailed, models.CodeOf(err))
}

func TestBuildArchive_NoLinks(t *testing.T) {
	d := newTestDownloader(t)

	_, err := d.BuildArchive(context.Background(), nil)
	require.Equal(t, models.ErrCodeNoLinksProvided, models.CodeOf(err))
}

func TestBuildArchive_AllFail(t *testing.T) {
	srv := newOrderServer(t)
	tmp := t.TempDir()
	d := New(config.DownloadConfig{Timeout: 2 * time.Second, MaxBodyBytes: 32, TempDir: tmp})

	links := []models.OrderLink{
		{URL: srv.URL + "/missing.pdf"},
		{URL: srv.URL + "/files/big.pdf"},
		{URL: "http://127.0.0.1:1/unreachable.pdf"},
	}
	archive, err := d.BuildArchive(context.Background(), links)
	require.Nil(t, archive)
	require.Equal(t, models.ErrCodeAllDownloadsFailed, models.CodeOf(err))

	// The scratch directory is removed on failure.
	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestArchiveCleanup(t *testing.T) {
	srv := newOrderServer(t)
	d := newTestDownloader(t)

	archive, err := d.BuildArchive(context.Background(), []models.OrderLink{{URL: srv.URL + "/files/a.pdf"}})
	require.NoError(t, err)
	require.FileExists(t, archive.Path)

	require.NoError(t, archive.Cleanup())
	require.NoDirExists(t, archive.Dir)
}

func TestPageCount_NonPDF(t *testing.T) {
	require.Equal(t, 0, pageCount([]byte("<html>not a pdf</html>")))
}
