// ASSOC: Association Discovery over Clinical Encounters
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// PartialSuffix marks output that was flushed by a run that did not complete.
const PartialSuffix = ".partial"

// ErrExists is returned when an output file already exists and overwriting was not forced.
var ErrExists = errors.New("output already exists (use force to overwrite)")

// IsGzip reports whether a file name asks for gzip compression.
func IsGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

type gzipReadCloser struct {
	*gzip.Reader
	file *os.File
}

func (r gzipReadCloser) Close() error {
	err := r.Reader.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open opens a file for reading. Files ending in .gz are decompressed transparently.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !IsGzip(path) {
		return file, nil
	}
	zr, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "gzip header of %s", path)
	}
	return gzipReadCloser{Reader: zr, file: file}, nil
}

// AtomicFile is an output file that only appears under its final name once it is complete. Data is written to a
// temporary file in the same directory, which Commit renames. Files ending in .gz are compressed.
type AtomicFile struct {
	path string
	file *os.File
	zw   *gzip.Writer
	w    io.Writer
}

// CreateAtomic starts writing path. Unless force is set, an existing file at path is an error.
func CreateAtomic(path string, force bool) (*AtomicFile, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil, errors.Wrap(ErrExists, path)
		}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "create directory %s", dir)
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, errors.Wrapf(err, "create temporary file for %s", path)
	}
	f := &AtomicFile{path: path, file: file, w: file}
	if IsGzip(path) {
		f.zw = gzip.NewWriter(file)
		f.w = f.zw
	}
	return f, nil
}

// Path returns the final name of the file.
func (f *AtomicFile) Path() string {
	return f.path
}

func (f *AtomicFile) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *AtomicFile) close() error {
	if f.zw != nil {
		if err := f.zw.Close(); err != nil {
			_ = f.file.Close()
			return errors.Wrapf(err, "compress %s", f.path)
		}
	}
	if err := f.file.Sync(); err != nil {
		_ = f.file.Close()
		return errors.Wrapf(err, "sync %s", f.path)
	}
	return errors.Wrapf(f.file.Close(), "close %s", f.path)
}

// Commit closes the file and moves it to its final name.
func (f *AtomicFile) Commit() error {
	if err := f.close(); err != nil {
		_ = os.Remove(f.file.Name())
		return err
	}
	return errors.Wrapf(os.Rename(f.file.Name(), f.path), "rename %s", f.path)
}

// Abort closes the file and keeps what was written under the final name plus PartialSuffix, so an incomplete
// result is never mistaken for a complete one.
func (f *AtomicFile) Abort() error {
	if err := f.close(); err != nil {
		_ = os.Remove(f.file.Name())
		return err
	}
	return errors.Wrapf(os.Rename(f.file.Name(), f.path+PartialSuffix), "rename %s", f.path)
}
