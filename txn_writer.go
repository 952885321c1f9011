package openrye

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// SafeWriter transactionalizes lock writes. The new lock is written to a
// temp file and moved into place only once fully written, under an advisory
// file lock so concurrent invocations cannot interleave. A failed write
// leaves the previous lock untouched.
type SafeWriter struct {
	root    string
	lock    *Lock
	hasWork bool
}

// NewSafeWriter prepares a write of newLock beneath root. When newLock is
// equivalent to oldLock there is nothing to do and Write becomes a no-op.
func NewSafeWriter(root string, oldLock, newLock *Lock) *SafeWriter {
	sw := &SafeWriter{root: root}
	if newLock == nil {
		return sw
	}
	if locksAreEquivalent(oldLock, newLock) {
		return sw
	}
	sw.lock = newLock
	sw.hasWork = true
	return sw
}

// HasWork reports whether Write would change anything on disk.
func (sw *SafeWriter) HasWork() bool {
	return sw.hasWork
}

// Write performs the prepared lock write.
func (sw *SafeWriter) Write() error {
	if !sw.hasWork {
		return nil
	}

	lpath := filepath.Join(sw.root, LockName)

	fl := flock.New(lpath + ".flock")
	if err := fl.Lock(); err != nil {
		return errors.Wrapf(err, "acquiring advisory lock for %s", lpath)
	}
	defer func() {
		fl.Unlock()
		os.Remove(fl.Path())
	}()

	td, err := ioutil.TempDir(sw.root, ".rye-lock-")
	if err != nil {
		return errors.Wrap(err, "creating temp dir for lock write")
	}
	defer os.RemoveAll(td)

	tpath := filepath.Join(td, LockName)
	raw, err := sw.lock.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "serializing lock")
	}
	if err := ioutil.WriteFile(tpath, raw, 0666); err != nil {
		return errors.Wrap(err, "writing lock to temp dir")
	}

	if err := renameWithFallback(tpath, lpath); err != nil {
		return errors.Wrap(err, "moving lock into place")
	}
	return nil
}

// renameWithFallback renames from to to, falling back to a copy when the
// rename crosses filesystems.
func renameWithFallback(from, to string) error {
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if _, ok := err.(*os.LinkError); !ok {
		return err
	}

	src, oerr := os.Open(from)
	if oerr != nil {
		return oerr
	}
	defer src.Close()

	dst, cerr := os.Create(to)
	if cerr != nil {
		return cerr
	}

	if _, werr := io.Copy(dst, src); werr != nil {
		dst.Close()
		return werr
	}
	if werr := dst.Close(); werr != nil {
		return werr
	}
	return os.Remove(from)
}
