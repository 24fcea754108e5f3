package rvhv

import (
	"fmt"
	"os"
)

// LoadImage reads the raw guest image at path and places it in the
// address space at the entry guest-physical address, backing the pages
// it covers with read/write/execute permissions. Consumed once before
// context preparation.
func LoadImage(path string, space *AddressSpace, entry uint64) error {
	img, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rvhv: reading guest image %q: %w", path, ErrLoadFailed)
	}
	return LoadImageBytes(img, space, entry)
}

// LoadImageBytes is LoadImage for an in-memory image.
func LoadImageBytes(img []byte, space *AddressSpace, entry uint64) error {
	if len(img) == 0 {
		return fmt.Errorf("rvhv: empty guest image: %w", ErrLoadFailed)
	}
	if !isPageAligned(entry) {
		return fmt.Errorf("rvhv: entry %#x not page-aligned: %w", entry, ErrInvalidAlignment)
	}

	size := alignDown(uint64(len(img))+pageMask)
	if !space.Contains(entry, size) {
		return fmt.Errorf("rvhv: image of %d bytes does not fit at %#x: %w", len(img), entry, ErrLoadFailed)
	}
	if err := space.MapAlloc(entry, size, PermRead|PermWrite|PermExec, true); err != nil {
		return fmt.Errorf("rvhv: backing image pages: %w", err)
	}
	if err := space.Write(entry, img); err != nil {
		return fmt.Errorf("rvhv: writing image: %w", err)
	}

	recordLoadOperation()
	return nil
}
