package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ligustah/ferry/internal/testutils"
)

// captureStdout runs fn and returns what it printed on stdout.
func captureStdout(t *testing.T, fn func() int) (string, int) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w

	out := make(chan string)
	go func() {
		data, _ := io.ReadAll(r)
		out <- string(data)
	}()

	code := fn()
	os.Stdout = orig
	w.Close()
	return <-out, code
}

func fileBucket(t *testing.T) string {
	t.Helper()
	return "file://" + t.TempDir()
}

func writeTestFile(t *testing.T, size int64) (string, []byte) {
	t.Helper()
	data := testutils.GenerateTestData(size)
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path, data
}

func upload(t *testing.T, args ...string) string {
	t.Helper()
	out, code := captureStdout(t, func() int { return runUpload(args) })
	if code != ExitSuccess {
		t.Fatalf("upload failed with exit code %d", code)
	}
	fileID := strings.TrimSpace(out)
	if fileID == "" {
		t.Fatal("upload printed no file id")
	}
	return fileID
}

func TestRunUsage(t *testing.T) {
	if code := run(nil); code != ExitInvalidArgs {
		t.Errorf("expected %d without args, got %d", ExitInvalidArgs, code)
	}
	if code := run([]string{"frobnicate"}); code != ExitInvalidArgs {
		t.Errorf("expected %d for unknown command, got %d", ExitInvalidArgs, code)
	}
	if code := run([]string{"help"}); code != ExitSuccess {
		t.Errorf("expected %d for help, got %d", ExitSuccess, code)
	}
}

func TestCLIRoundTrip(t *testing.T) {
	bucket := fileBucket(t)
	input, data := writeTestFile(t, 3*1024*1024+5)

	fileID := upload(t,
		"-bucket", bucket,
		"-bucket-id", "photos",
		"-file", input,
		"-chunk-size", "512KiB",
		"-workers", "4",
	)

	if code := runValidate([]string{"-bucket", bucket, "-bucket-id", "photos", "-file-id", fileID}); code != ExitSuccess {
		t.Fatalf("validate failed with exit code %d", code)
	}
	report, code := captureStdout(t, func() int {
		return runValidate([]string{"-bucket", bucket, "-bucket-id", "photos", "-file-id", fileID, "-verify-data"})
	})
	if code != ExitSuccess {
		t.Fatalf("validate -verify-data failed with exit code %d", code)
	}
	if !strings.Contains(report, "Name: input.bin") || !strings.Contains(report, "Status: VALID") {
		t.Errorf("unexpected validate report:\n%s", report)
	}

	output := filepath.Join(t.TempDir(), "output.bin")
	_, code = captureStdout(t, func() int {
		return runDownload([]string{
			"-bucket", bucket,
			"-bucket-id", "photos",
			"-file-id", fileID,
			"-output", output,
			"-chunk-size", "1MiB",
		})
	})
	if code != ExitSuccess {
		t.Fatalf("download failed with exit code %d", code)
	}

	downloaded, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(downloaded, data) {
		t.Fatalf("downloaded data mismatch: got %d bytes, want %d bytes", len(downloaded), len(data))
	}

	if code := runDelete([]string{"-bucket", bucket, "-bucket-id", "photos", "-file-id", fileID, "-force"}); code != ExitSuccess {
		t.Fatalf("delete failed with exit code %d", code)
	}
	if code := runValidate([]string{"-bucket", bucket, "-bucket-id", "photos", "-file-id", fileID}); code == ExitSuccess {
		t.Fatal("validate should have failed after delete")
	}
}

func TestCLIEncryptedRoundTrip(t *testing.T) {
	bucket := fileBucket(t)
	input, data := writeTestFile(t, 700*1024)
	key := strings.Repeat("ab", 32)

	fileID := upload(t, "-bucket", bucket, "-bucket-id", "b", "-file", input, "-key", key, "-chunk-size", "256KiB")

	download := func(extra ...string) []byte {
		t.Helper()
		output := filepath.Join(t.TempDir(), "output.bin")
		args := append([]string{"-bucket", bucket, "-bucket-id", "b", "-file-id", fileID, "-output", output}, extra...)
		_, code := captureStdout(t, func() int { return runDownload(args) })
		if code != ExitSuccess {
			t.Fatalf("download failed with exit code %d", code)
		}
		got, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("read downloaded file: %v", err)
		}
		return got
	}

	if got := download("-key", key); !bytes.Equal(got, data) {
		t.Fatal("decrypted data mismatch")
	}
	if got := download(); bytes.Equal(got, data) {
		t.Fatal("data downloaded without key should still be encrypted")
	}
}

func TestCLIInvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]string) int
		args []string
	}{
		{"upload without bucket", runUpload, []string{"-bucket-id", "b", "-file", "x"}},
		{"upload without file", runUpload, []string{"-bucket", "mem://", "-bucket-id", "b"}},
		{"upload bad chunk size", runUpload, []string{"-bucket", "mem://", "-bucket-id", "b", "-file", "x", "-chunk-size", "huge"}},
		{"upload bad key", runUpload, []string{"-bucket", "mem://", "-bucket-id", "b", "-file", "x", "-key", "zz"}},
		{"download without output", runDownload, []string{"-bucket", "mem://", "-bucket-id", "b", "-file-id", "f"}},
		{"validate without file id", runValidate, []string{"-bucket", "mem://", "-bucket-id", "b"}},
		{"delete without bucket", runDelete, []string{"-bucket-id", "b", "-file-id", "f", "-force"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := tt.fn(tt.args); code != ExitInvalidArgs {
				t.Errorf("expected exit code %d, got %d", ExitInvalidArgs, code)
			}
		})
	}
}

func TestCLIUploadMissingFile(t *testing.T) {
	code := runUpload([]string{"-bucket", fileBucket(t), "-bucket-id", "b", "-file", filepath.Join(t.TempDir(), "nope.bin")})
	if code != ExitNotFound {
		t.Errorf("expected exit code %d, got %d", ExitNotFound, code)
	}
}

func TestCLIDownloadMissingObject(t *testing.T) {
	output := filepath.Join(t.TempDir(), "output.bin")
	code := runDownload([]string{"-bucket", fileBucket(t), "-bucket-id", "b", "-file-id", "missing", "-output", output})
	if code != ExitNotFound {
		t.Errorf("expected exit code %d, got %d", ExitNotFound, code)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("expected no output file, got %v", err)
	}
}
