package intake

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func newTestIntake(t *testing.T, maxBytes int64) *Intake {
	t.Helper()
	base := t.TempDir()
	return New(logger.NewTestLogger(), Config{
		UploadsDir:     filepath.Join(base, "uploads"),
		ProcessedDir:   filepath.Join(base, "processed"),
		MaxUploadBytes: maxBytes,
	})
}

func makeUpload(t *testing.T, filename, contentType string, data []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	fh := form.File["file"][0]
	file, err := fh.Open()
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	return file, fh
}

func TestEnsureDirectoriesCreatesBoth(t *testing.T) {
	in := newTestIntake(t, 1<<20)

	require.NoError(t, in.EnsureDirectories())

	for _, dir := range []string{in.UploadsDir(), in.ProcessedDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// Idempotent on a second call.
	require.NoError(t, in.EnsureDirectories())
}

func TestEnsureDirectoriesLeavesNoProbeFiles(t *testing.T) {
	in := newTestIntake(t, 1<<20)
	require.NoError(t, in.EnsureDirectories())

	entries, err := os.ReadDir(in.UploadsDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreRoundTripFidelity(t *testing.T) {
	in := newTestIntake(t, 1<<20)
	require.NoError(t, in.EnsureDirectories())

	file, fh := makeUpload(t, "scan 2024.pdf", "application/pdf", pdfBytes)
	stored, err := in.Store(file, fh)
	require.NoError(t, err)

	assert.Equal(t, "scan 2024.pdf", stored.OriginalName)
	assert.Regexp(t, regexp.MustCompile(`^scan_2024_\d+\.pdf$`), stored.SafeName)
	assert.Equal(t, int64(len(pdfBytes)), stored.Size)

	onDisk, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, onDisk)
}

func TestStoreSameNameTwiceGetsDistinctSafeNames(t *testing.T) {
	in := newTestIntake(t, 1<<20)
	require.NoError(t, in.EnsureDirectories())

	fileA, fhA := makeUpload(t, "doc.pdf", "application/pdf", pdfBytes)
	fileB, fhB := makeUpload(t, "doc.pdf", "application/pdf", pdfBytes)

	storedA, err := in.Store(fileA, fhA)
	require.NoError(t, err)
	storedB, err := in.Store(fileB, fhB)
	require.NoError(t, err)

	assert.NotEqual(t, storedA.SafeName, storedB.SafeName)
}

func TestStoreRejectsWrongExtensionBeforeWriting(t *testing.T) {
	in := newTestIntake(t, 1<<20)
	require.NoError(t, in.EnsureDirectories())

	file, fh := makeUpload(t, "evil.exe", "application/pdf", pdfBytes)
	_, err := in.Store(file, fh)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeUnsupportedMediaType, verr.Code)

	// Nothing may have been written to the intake directory.
	entries, readErr := os.ReadDir(in.UploadsDir())
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestStoreRejectsWrongDeclaredType(t *testing.T) {
	in := newTestIntake(t, 1<<20)
	require.NoError(t, in.EnsureDirectories())

	file, fh := makeUpload(t, "doc.pdf", "image/png", pdfBytes)
	_, err := in.Store(file, fh)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeUnsupportedMediaType, verr.Code)
}

func TestStoreRejectsNonPDFContent(t *testing.T) {
	in := newTestIntake(t, 1<<20)
	require.NoError(t, in.EnsureDirectories())

	file, fh := makeUpload(t, "doc.pdf", "application/pdf", []byte("MZ\x90\x00 definitely not a pdf"))
	_, err := in.Store(file, fh)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeUnsupportedMediaType, verr.Code)
}

func TestStoreRejectsOversizedPayloadWithExactSize(t *testing.T) {
	in := newTestIntake(t, 2*1024*1024) // 2 MB limit
	require.NoError(t, in.EnsureDirectories())

	payload := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), int(2.5*1024*1024))...)
	file, fh := makeUpload(t, "big.pdf", "application/pdf", payload)

	_, err := in.Store(file, fh)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodePayloadTooLarge, verr.Code)

	wantSize := fmt.Sprintf("%.2f MB", float64(len(payload))/(1024*1024))
	assert.Contains(t, verr.Message, wantSize)
}
