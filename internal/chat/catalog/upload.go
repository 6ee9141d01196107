package catalog

import (
	"fmt"
	"os"
	"time"
)

// Upload - file being received. Its content is invisible until Commit.
type Upload struct {
	catalog *Catalog
	name    string
	file    *os.File
	closed  bool
}

// Name - sanitized target name.
func (u *Upload) Name() string {
	return u.name
}

// Write - appends bytes to temporary file.
func (u *Upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, ErrUploadClosed
	}
	return u.file.Write(p)
}

// Commit - verifies stored size and lists the file.
// On any failure the temporary file is removed.
func (u *Upload) Commit(uploader string, size int64, at time.Time) (Entry, error) {
	if u.closed {
		return Entry{}, ErrUploadClosed
	}
	u.closed = true
	tmp := u.file.Name()

	fail := func(err error) (Entry, error) {
		u.file.Close()
		os.Remove(tmp)
		return Entry{}, err
	}

	if err := u.file.Sync(); err != nil {
		return fail(fmt.Errorf("catalog: sync %q: %w", u.name, err))
	}
	info, err := u.file.Stat()
	if err != nil {
		return fail(fmt.Errorf("catalog: stat %q: %w", u.name, err))
	}
	if info.Size() != size {
		return fail(fmt.Errorf("%w: stored %d of %d bytes", ErrSizeMismatch, info.Size(), size))
	}
	if err := u.file.Close(); err != nil {
		os.Remove(tmp)
		return Entry{}, fmt.Errorf("catalog: close %q: %w", u.name, err)
	}

	e := Entry{
		Name:       u.name,
		Size:       size,
		Uploader:   uploader,
		UploadedAt: at,
	}
	if err := u.catalog.publish(tmp, e); err != nil {
		os.Remove(tmp)
		return Entry{}, err
	}
	return e, nil
}

// Abort - drops partial content. Safe to call after Commit.
func (u *Upload) Abort() {
	if u.closed {
		return
	}
	u.closed = true
	u.file.Close()
	os.Remove(u.file.Name())
}
