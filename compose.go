package chatsync

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Attachment Limits
// ============================================================================

const (
	DefaultMaxFiles     = 10
	DefaultMaxFileSize  = 10 << 20
	DefaultMaxTotalSize = 50 << 20
)

// DocumentTypes are the MIME types accepted by a document selection.
var DocumentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
}

// Limits bounds the attachments of one draft.
type Limits struct {
	MaxFiles     int
	MaxFileSize  int64
	MaxTotalSize int64
	// DocumentTypes is the allow-list for KindDoc selections. KindImage
	// selections accept any image/* type.
	DocumentTypes []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxFiles:      DefaultMaxFiles,
		MaxFileSize:   DefaultMaxFileSize,
		MaxTotalSize:  DefaultMaxTotalSize,
		DocumentTypes: DocumentTypes,
	}
}

func (l Limits) accepts(kind MessageKind, mimeType string) bool {
	if kind == KindImage {
		return strings.HasPrefix(mimeType, "image/")
	}
	for _, t := range l.DocumentTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Check applies the limits to a whole draft. A doc draft also accepts
// image/* files, since a mixed selection is sent as a document.
func (l Limits) Check(d Draft) error {
	if len(d.Files) > l.MaxFiles {
		return fmt.Errorf("%w: you can only attach up to %d files at once", ErrTooManyFiles, l.MaxFiles)
	}
	var total int64
	for _, f := range d.Files {
		if f.Size > l.MaxFileSize {
			return fmt.Errorf("%w: %s is larger than %s", ErrFileTooLarge, f.Name, humanize.IBytes(uint64(l.MaxFileSize)))
		}
		if !l.accepts(d.Kind, f.Type) && !(d.Kind != KindImage && l.accepts(KindImage, f.Type)) {
			return fmt.Errorf("%w: %s (%s)", ErrInvalidFileType, f.Name, f.Type)
		}
		total += f.Size
		if total > l.MaxTotalSize {
			return fmt.Errorf("%w: %s would exceed %s", ErrTotalTooLarge, f.Name, humanize.IBytes(uint64(l.MaxTotalSize)))
		}
	}
	return nil
}

// ============================================================================
// Local Files
// ============================================================================

// LocalFile is a file selected for sending. Content is read only when the
// message is sent.
type LocalFile struct {
	Name string
	Size int64
	Type string
	Open func() (io.ReadCloser, error)
}

// FileFromPath describes the file at path, guessing its MIME type from the
// extension.
func FileFromPath(path string) (LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalFile{}, err
	}
	if info.IsDir() {
		return LocalFile{}, fmt.Errorf("%s is a directory", path)
	}
	return LocalFile{
		Name: filepath.Base(path),
		Size: info.Size(),
		Type: guessMimeType(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// FileFromBytes describes an in-memory file. An empty mimeType is guessed
// from name.
func FileFromBytes(name string, data []byte, mimeType string) LocalFile {
	if mimeType == "" {
		mimeType = guessMimeType(name)
	}
	return LocalFile{
		Name: name,
		Size: int64(len(data)),
		Type: mimeType,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// guessMimeType returns MIME type from file extension.
func guessMimeType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return "application/octet-stream"
	}
	// Office types are missing from Go's builtin registry on most systems
	fallback := map[string]string{
		".doc":  "application/msword",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".xls":  "application/vnd.ms-excel",
		".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		".txt":  "text/plain",
		".webp": "image/webp",
	}
	if m, ok := fallback[ext]; ok {
		return m
	}
	t := mime.TypeByExtension(ext)
	if t != "" {
		if idx := strings.Index(t, ";"); idx > 0 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	return "application/octet-stream"
}

// encodeFiles reads and base64-encodes files concurrently, preserving order.
func encodeFiles(ctx context.Context, files []LocalFile) ([]FileAttachment, error) {
	out := make([]FileAttachment, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f.Open == nil {
				return fmt.Errorf("read %s: no content", f.Name)
			}
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("read %s: %w", f.Name, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.Name, err)
			}
			out[i] = FileAttachment{
				Name:    f.Name,
				Size:    int64(len(data)),
				Type:    f.Type,
				Content: base64.StdEncoding.EncodeToString(data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================================
// Composer
// ============================================================================

// Draft is the content of one outgoing message.
type Draft struct {
	Text  string
	Kind  MessageKind
	Files []LocalFile
}

// Validate rejects drafts with both text and files, or neither.
func (d Draft) Validate() error {
	hasText := strings.TrimSpace(d.Text) != ""
	switch {
	case hasText && len(d.Files) > 0:
		return ErrMixedContent
	case !hasText && len(d.Files) == 0:
		return ErrEmptyMessage
	}
	return nil
}

// Composer holds the draft being edited. A draft carries text or files, never
// both.
type Composer struct {
	mu     sync.Mutex
	limits Limits
	text   string
	kind   MessageKind
	files  []LocalFile
}

func NewComposer(limits Limits) *Composer {
	return &Composer{limits: limits, kind: KindDoc}
}

// SetText replaces the draft text. It fails with ErrMixedContent while files
// are attached.
func (c *Composer) SetText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.files) > 0 && text != "" {
		return ErrMixedContent
	}
	c.text = text
	return nil
}

// Attach adds a selection of files of the given kind (KindDoc or KindImage).
//
// A selection that would push the draft over MaxFiles is rejected whole.
// Otherwise each file over MaxFileSize or of an unaccepted type is skipped,
// and the first file that would push the total over MaxTotalSize ends the
// selection. Accepted files clear any draft text. The returned error joins
// the reasons for every rejected file.
func (c *Composer) Attach(kind MessageKind, files ...LocalFile) (int, error) {
	if kind != KindImage {
		kind = KindDoc
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.files)+len(files) > c.limits.MaxFiles {
		return 0, fmt.Errorf("%w: you can only attach up to %d files at once", ErrTooManyFiles, c.limits.MaxFiles)
	}

	var total int64
	for _, f := range c.files {
		total += f.Size
	}

	var errs []error
	var valid []LocalFile
	for _, f := range files {
		if f.Size > c.limits.MaxFileSize {
			errs = append(errs, fmt.Errorf("%w: %s is larger than %s", ErrFileTooLarge, f.Name, humanize.IBytes(uint64(c.limits.MaxFileSize))))
			continue
		}
		if !c.limits.accepts(kind, f.Type) {
			errs = append(errs, fmt.Errorf("%w: %s (%s)", ErrInvalidFileType, f.Name, f.Type))
			continue
		}
		if total+f.Size > c.limits.MaxTotalSize {
			errs = append(errs, fmt.Errorf("%w: %s would exceed %s", ErrTotalTooLarge, f.Name, humanize.IBytes(uint64(c.limits.MaxTotalSize))))
			break
		}
		total += f.Size
		valid = append(valid, f)
	}

	if len(valid) > 0 {
		if len(c.files) == 0 {
			c.kind = kind
		} else if c.kind != kind {
			c.kind = KindDoc
		}
		c.files = append(c.files, valid...)
		c.text = ""
	}
	return len(valid), errors.Join(errs...)
}

// RemoveFile drops the attachment at index i.
func (c *Composer) RemoveFile(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.files) {
		return
	}
	c.files = append(c.files[:i], c.files[i+1:]...)
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Composer) Files() []LocalFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LocalFile(nil), c.files...)
}

// TotalSize returns the combined size of attached files.
func (c *Composer) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, f := range c.files {
		total += f.Size
	}
	return total
}

// Draft returns a snapshot of the draft.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := Draft{Text: c.text}
	if len(c.files) > 0 {
		d.Kind = c.kind
		d.Files = append([]LocalFile(nil), c.files...)
	} else {
		d.Kind = KindText
	}
	return d
}

// Clear empties the draft.
func (c *Composer) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = ""
	c.files = nil
	c.kind = KindDoc
}
