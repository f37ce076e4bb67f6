// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// byteSource produces a read-only contiguous byte range plus a filepath
// for diagnostics. mmapSource backs PCAP and plain PCAPNG files;
// bufferSource backs the Zstandard-framed PCAPNG adapter. The PCAPNG
// block walker (pcapng.go) is written against this interface, not
// against either concrete source, so it can traverse a memory-mapped
// file and a decompressed heap buffer identically.
type byteSource interface {
	open() error
	close() error
	bytes() []byte
	size() int64
}

// mmapSource memory-maps a whole file read-only.
type mmapSource struct {
	filepath string

	f *os.File
	m mmap.MMap
}

func (s *mmapSource) open() error {
	f, err := os.Open(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return newErr(KindNotFound, 0, err)
		}
		return newErr(KindIOError, 0, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return newErr(KindIOError, 0, err)
	}

	if info.Size() == 0 {
		f.Close()
		return newErr(KindTooShort, 0, nil)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return newErr(KindIOError, 0, err)
	}

	s.f = f
	s.m = m
	return nil
}

func (s *mmapSource) close() error {
	var err error
	if s.m != nil {
		err = s.m.Unmap()
		s.m = nil
	}
	if s.f != nil {
		if cerr := s.f.Close(); err == nil {
			err = cerr
		}
		s.f = nil
	}
	return err
}

func (s *mmapSource) bytes() []byte { return s.m }
func (s *mmapSource) size() int64   { return int64(len(s.m)) }

// bufferSource wraps a heap buffer already fully populated (the output of
// Zstandard decompression). open/close are no-ops beyond freeing the
// reference so the garbage collector can reclaim the buffer.
type bufferSource struct {
	buf []byte
}

func (s *bufferSource) open() error  { return nil }
func (s *bufferSource) close() error { s.buf = nil; return nil }
func (s *bufferSource) bytes() []byte { return s.buf }
func (s *bufferSource) size() int64   { return int64(len(s.buf)) }
