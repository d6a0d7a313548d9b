//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapCommitter reserves the full address range with a single anonymous,
// inaccessible mapping and mprotects a growing prefix to PROT_READ|WRITE as
// pages are committed. Addresses already handed out by AllocWords are never
// invalidated by a later growth, the same guarantee a Wasm module gets from
// `memory.grow`. This is the same reserve-then-commit idiom
// internal/core/process.go uses when memory-mapping core file regions with
// mmap and syscall.Getpagesize().
type mmapCommitter struct {
	data   []byte
	pages  uint32
	maxLen int
}

func newCommitter(maxPages uint32) (committer, error) {
	maxLen := int(maxPages) * PageSize
	if maxLen == 0 {
		maxLen = PageSize
	}
	data, err := unix.Mmap(-1, 0, maxLen, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap reserve %d bytes: %w", maxLen, err)
	}
	return &mmapCommitter{data: data, maxLen: maxLen}, nil
}

func (c *mmapCommitter) bytes() []byte { return c.data }

func (c *mmapCommitter) commit(pages uint32) error {
	if pages <= c.pages {
		return nil
	}
	newLen := int(pages) * PageSize
	if newLen > c.maxLen {
		return fmt.Errorf("mmap: requested %d bytes exceeds reservation of %d", newLen, c.maxLen)
	}
	if err := unix.Mprotect(c.data[:newLen], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("mprotect commit %d pages: %w", pages, err)
	}
	c.pages = pages
	return nil
}

func (c *mmapCommitter) close() error {
	return unix.Munmap(c.data)
}
