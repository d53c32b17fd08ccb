package chatsync

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestFile(name string, size int64, mimeType string) LocalFile {
	return LocalFile{Name: name, Size: size, Type: mimeType}
}

func TestComposerAttach(t *testing.T) {
	t.Run("too many files rejects the selection", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		require.NoError(t, c.SetText("draft"))

		var files []LocalFile
		for i := 0; i < 11; i++ {
			files = append(files, makeTestFile("f"+strconv.Itoa(i)+".pdf", 1024, "application/pdf"))
		}
		n, err := c.Attach(KindDoc, files...)
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, ErrTooManyFiles)
		assert.Empty(t, c.Files())
		assert.Equal(t, "draft", c.Text())
	})

	t.Run("limit counts files already attached", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		var files []LocalFile
		for i := 0; i < 8; i++ {
			files = append(files, makeTestFile("f"+strconv.Itoa(i)+".pdf", 10, "application/pdf"))
		}
		n, err := c.Attach(KindDoc, files...)
		require.NoError(t, err)
		require.Equal(t, 8, n)

		n, err = c.Attach(KindDoc, files[:3]...)
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, ErrTooManyFiles)
		assert.Len(t, c.Files(), 8)
	})

	t.Run("oversize file is skipped", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		n, err := c.Attach(KindDoc,
			makeTestFile("big.pdf", 12<<20, "application/pdf"),
			makeTestFile("small.pdf", 1<<20, "application/pdf"),
		)
		assert.Equal(t, 1, n)
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Contains(t, err.Error(), "big.pdf")
		require.Len(t, c.Files(), 1)
		assert.Equal(t, "small.pdf", c.Files()[0].Name)
	})

	t.Run("unaccepted type is skipped", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		n, err := c.Attach(KindDoc,
			makeTestFile("tool.exe", 10, "application/x-msdownload"),
			makeTestFile("notes.txt", 10, "text/plain"),
		)
		assert.Equal(t, 1, n)
		assert.ErrorIs(t, err, ErrInvalidFileType)
	})

	t.Run("image selection accepts any image type", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		n, err := c.Attach(KindImage,
			makeTestFile("a.bmp", 10, "image/bmp"),
			makeTestFile("b.pdf", 10, "application/pdf"),
		)
		assert.Equal(t, 1, n)
		assert.ErrorIs(t, err, ErrInvalidFileType)
		assert.Equal(t, KindImage, c.Draft().Kind)
	})

	t.Run("total limit ends the selection", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		var files []LocalFile
		for i := 0; i < 6; i++ {
			files = append(files, makeTestFile("f"+strconv.Itoa(i)+".pdf", 9<<20, "application/pdf"))
		}
		n, err := c.Attach(KindDoc, files...)
		assert.Equal(t, 5, n)
		assert.ErrorIs(t, err, ErrTotalTooLarge)
		assert.Equal(t, int64(45<<20), c.TotalSize())
	})

	t.Run("attaching clears text", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		require.NoError(t, c.SetText("hello"))
		_, err := c.Attach(KindDoc, makeTestFile("a.pdf", 10, "application/pdf"))
		require.NoError(t, err)
		assert.Empty(t, c.Text())
		assert.ErrorIs(t, c.SetText("again"), ErrMixedContent)
		assert.NoError(t, c.SetText(""))
	})

	t.Run("mixed selections become documents", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		_, err := c.Attach(KindImage, makeTestFile("a.png", 10, "image/png"))
		require.NoError(t, err)
		_, err = c.Attach(KindDoc, makeTestFile("b.pdf", 10, "application/pdf"))
		require.NoError(t, err)
		assert.Equal(t, KindDoc, c.Draft().Kind)
	})

	t.Run("remove and clear", func(t *testing.T) {
		c := NewComposer(DefaultLimits())
		_, err := c.Attach(KindDoc,
			makeTestFile("a.pdf", 10, "application/pdf"),
			makeTestFile("b.pdf", 20, "application/pdf"),
		)
		require.NoError(t, err)
		c.RemoveFile(0)
		c.RemoveFile(5)
		require.Len(t, c.Files(), 1)
		assert.Equal(t, "b.pdf", c.Files()[0].Name)

		c.Clear()
		d := c.Draft()
		assert.Equal(t, KindText, d.Kind)
		assert.ErrorIs(t, d.Validate(), ErrEmptyMessage)
	})
}

func TestDraftValidate(t *testing.T) {
	assert.NoError(t, Draft{Text: "hi"}.Validate())
	assert.NoError(t, Draft{Files: []LocalFile{{Name: "a"}}}.Validate())
	assert.ErrorIs(t, Draft{Text: "   "}.Validate(), ErrEmptyMessage)
	assert.ErrorIs(t, Draft{Text: "hi", Files: []LocalFile{{Name: "a"}}}.Validate(), ErrMixedContent)
}

func TestLimitsCheck(t *testing.T) {
	l := DefaultLimits()

	t.Run("composer drafts pass", func(t *testing.T) {
		c := NewComposer(l)
		_, err := c.Attach(KindImage, makeTestFile("a.bmp", 10, "image/bmp"))
		require.NoError(t, err)
		_, err = c.Attach(KindDoc, makeTestFile("b.pdf", 10, "application/pdf"))
		require.NoError(t, err)
		assert.NoError(t, l.Check(c.Draft()))
		assert.NoError(t, l.Check(Draft{Text: "hi"}))
	})

	t.Run("limits", func(t *testing.T) {
		var eleven []LocalFile
		for i := 0; i < 11; i++ {
			eleven = append(eleven, makeTestFile("f"+strconv.Itoa(i)+".pdf", 10, "application/pdf"))
		}
		assert.ErrorIs(t, l.Check(Draft{Files: eleven}), ErrTooManyFiles)
		assert.ErrorIs(t, l.Check(Draft{Files: []LocalFile{makeTestFile("big.pdf", 80<<20, "application/pdf")}}), ErrFileTooLarge)
		assert.ErrorIs(t, l.Check(Draft{Files: []LocalFile{makeTestFile("x.exe", 10, "application/x-msdownload")}}), ErrInvalidFileType)
		assert.ErrorIs(t, l.Check(Draft{Kind: KindImage, Files: []LocalFile{makeTestFile("a.txt", 10, "text/plain")}}), ErrInvalidFileType)
		assert.NoError(t, l.Check(Draft{Files: eleven[:10]}))

		var heavy []LocalFile
		for i := 0; i < 6; i++ {
			heavy = append(heavy, makeTestFile("h"+strconv.Itoa(i)+".pdf", 9<<20, "application/pdf"))
		}
		assert.ErrorIs(t, l.Check(Draft{Files: heavy}), ErrTotalTooLarge)
	})
}

func TestEncodeFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("encodes in order", func(t *testing.T) {
		files := []LocalFile{
			FileFromBytes("a.txt", []byte("alpha"), ""),
			FileFromBytes("b.png", []byte{0x89, 0x50, 0x4e, 0x47}, ""),
		}
		out, err := encodeFiles(ctx, files)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "a.txt", out[0].Name)
		assert.Equal(t, "text/plain", out[0].Type)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("alpha")), out[0].Content)
		assert.Equal(t, "image/png", out[1].Type)
		assert.Equal(t, int64(4), out[1].Size)
	})

	t.Run("read failure", func(t *testing.T) {
		broken := LocalFile{Name: "gone.pdf", Open: func() (io.ReadCloser, error) { return nil, os.ErrNotExist }}
		_, err := encodeFiles(ctx, []LocalFile{broken})
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
		assert.Contains(t, err.Error(), "gone.pdf")
	})

	t.Run("from path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.docx")
		require.NoError(t, os.WriteFile(path, []byte("doc"), 0o644))

		f, err := FileFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, "report.docx", f.Name)
		assert.Equal(t, int64(3), f.Size)
		assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", f.Type)

		out, err := encodeFiles(ctx, []LocalFile{f})
		require.NoError(t, err)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("doc")), out[0].Content)

		_, err = FileFromPath(t.TempDir())
		assert.Error(t, err)
	})
}

func TestGuessMimeType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a.pdf", "application/pdf"},
		{"A.XLSX", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"photo.jpg", "image/jpeg"},
		{"noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guessMimeType(tt.name))
		})
	}
}
