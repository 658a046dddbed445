package attachment

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
)

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := NewDiskStore(dir)
	require.NoError(t, err)
	return NewPipeline(blobs, "http://localhost:8080", logger.NewNop()), dir
}

func TestStage_RejectsOversizeDeclaration(t *testing.T) {
	req := require.New(t)
	p, dir := newTestPipeline(t)

	_, err := p.Stage(context.Background(), "big.bin", 15<<20, bytes.NewReader(nil))
	req.ErrorIs(err, model.ErrAttachmentTooLarge)

	// Nothing staged, no blob left behind.
	entries, err := os.ReadDir(dir)
	req.NoError(err)
	req.Empty(entries)
}

func TestStage_RejectsOversizeStream(t *testing.T) {
	req := require.New(t)
	p, dir := newTestPipeline(t)

	// Declared size lies; the copy itself must hit the ceiling.
	oversize := io.LimitReader(zeroReader{}, MaxAttachmentSize+1)
	h, err := p.Stage(context.Background(), "liar.bin", 1024, oversize)
	req.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req.ErrorIs(h.Wait(ctx), model.ErrAttachmentTooLarge)
	req.False(h.Uploaded())

	entries, err := os.ReadDir(dir)
	req.NoError(err)
	req.Empty(entries, "partial blob must be removed")
}

func TestStage_UploadCompletes(t *testing.T) {
	req := require.New(t)
	p, _ := newTestPipeline(t)

	content := strings.Repeat("x", 5<<20)
	h, err := p.Stage(context.Background(), "report.txt", int64(len(content)), strings.NewReader(content))
	req.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req.NoError(h.Wait(ctx))
	req.True(h.Uploaded())
	req.Equal(int64(len(content)), h.Info().Size)
	req.Contains(h.URL(), h.ID)

	rc, info, err := p.Open(h.ID)
	req.NoError(err)
	defer rc.Close()
	req.Equal("report.txt", info.Name)
	data, err := io.ReadAll(rc)
	req.NoError(err)
	req.Len(data, len(content))
}

func TestReady_GatesOnUpload(t *testing.T) {
	req := require.New(t)
	p, _ := newTestPipeline(t)

	// A slow reader keeps the upload pending.
	pr, pw := io.Pipe()
	h, err := p.Stage(context.Background(), "slow.bin", 1024, pr)
	req.NoError(err)

	_, err = p.Ready([]string{h.ID})
	req.ErrorIs(err, model.ErrAttachmentNotReady)

	_, err = pw.Write([]byte("payload"))
	req.NoError(err)
	req.NoError(pw.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req.NoError(h.Wait(ctx))

	handles, err := p.Ready([]string{h.ID})
	req.NoError(err)
	req.Len(handles, 1)
	req.True(handles[0].Uploaded())
}

func TestReady_UnknownHandle(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Ready([]string{"missing"})
	require.ErrorIs(t, err, model.ErrAttachmentNotFound)
}

func TestIsImage_FromSniffedContentType(t *testing.T) {
	req := require.New(t)
	p, _ := newTestPipeline(t)

	// Minimal PNG header is enough for detection.
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	h, err := p.Stage(context.Background(), "pic.png", int64(len(png)), bytes.NewReader(png))
	req.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req.NoError(h.Wait(ctx))
	req.True(h.IsImage())
	req.Equal("image/png", h.Info().ContentType)
}

func TestDiskStore_DeleteIsIdempotent(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	blobs, err := NewDiskStore(dir)
	req.NoError(err)

	info, err := blobs.Put("b1", "a.txt", strings.NewReader("abc"), MaxAttachmentSize)
	req.NoError(err)
	req.Equal(int64(3), info.Size)
	req.FileExists(filepath.Join(dir, "b1"))

	req.NoError(blobs.Delete("b1"))
	req.NoError(blobs.Delete("b1"))
	_, _, err = blobs.Open("b1")
	req.ErrorIs(err, model.ErrAttachmentNotFound)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
