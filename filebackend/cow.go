package filebackend

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/bvisor-project/bvisor/errno"
)

// Cow is a copy-on-write file handle. It starts in passthrough mode,
// reading straight from the host file; the first write snapshots the
// file into the overlay and switches to writecopy mode permanently — the
// transition is one-way, per spec.md §4.5, so a later read after a write
// never falls back to seeing the host's copy.
type Cow struct {
	hostPath string
	cowDir   string

	host    *os.File // always open, read-only, for passthrough reads
	private *os.File // nil until the first write
}

// OpenCow opens hostPath for copy-on-write access. If an earlier write
// already materialised a copy under cowDir (mirroring hostPath's own
// directory structure, per spec.md §3/§4.5), it opens directly in
// writecopy mode so every open after the first write sees the overlay's
// bytes rather than the host's — snapshotting only ever happens once.
func OpenCow(hostPath, cowDir string) (*Cow, error) {
	mirror := CowMirrorPath(cowDir, hostPath)
	if priv, err := os.OpenFile(mirror, os.O_RDWR, 0); err == nil {
		return &Cow{hostPath: hostPath, cowDir: cowDir, private: priv}, nil
	} else if !os.IsNotExist(err) {
		return nil, translateOpenErr(err)
	}

	f, err := os.OpenFile(hostPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, translateOpenErr(err)
	}
	return &Cow{hostPath: hostPath, cowDir: cowDir, host: f}, nil
}

// CowMirrorPath maps an absolute host path to its overlay location,
// nesting it under cowDir the same way it's nested under / — the same
// path a materialised copy of hostPath lives at, and what Fstatat/
// Faccessat must stat instead of the raw host path once a write has
// promoted the file into writecopy mode.
func CowMirrorPath(cowDir, hostPath string) string {
	return filepath.Join(cowDir, filepath.Clean(hostPath))
}

func (c *Cow) Kind() Kind { return KindCow }

func (c *Cow) ReadAt(buf []byte, off int64) (int, error) {
	if c.private != nil {
		n, err := c.private.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, translateIOErr(err)
		}
		return n, nil
	}
	n, err := c.host.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, translateIOErr(err)
	}
	return n, nil
}

func (c *Cow) WriteAt(buf []byte, off int64) (int, error) {
	if c.private == nil {
		if err := c.snapshot(); err != nil {
			return 0, err
		}
	}
	n, err := c.private.WriteAt(buf, off)
	if err != nil {
		return n, translateIOErr(err)
	}
	return n, nil
}

// snapshot copies the host file's current content into a private file
// mirroring hostPath under the overlay and switches future reads and
// writes to it.
func (c *Cow) snapshot() error {
	name := CowMirrorPath(c.cowDir, c.hostPath)
	if err := os.MkdirAll(filepath.Dir(name), 0o700); err != nil {
		return errno.EIO
	}
	priv, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errno.EIO
	}
	if _, err := c.host.Seek(0, io.SeekStart); err != nil {
		priv.Close()
		return errno.EIO
	}
	if _, err := io.Copy(priv, c.host); err != nil {
		priv.Close()
		return errno.EIO
	}
	c.private = priv
	return nil
}

func (c *Cow) Statx() (Stat, error) {
	f := c.host
	if c.private != nil {
		f = c.private
	}
	fi, err := f.Stat()
	if err != nil {
		return Stat{}, errno.EIO
	}
	return Stat{Mode: uint32(fi.Mode()), Size: fi.Size(), IsDir: fi.IsDir()}, nil
}

func (c *Cow) Close() error {
	var err error
	if c.host != nil {
		err = c.host.Close()
	}
	if c.private != nil {
		if perr := c.private.Close(); perr != nil {
			err = perr
		}
	}
	return err
}
