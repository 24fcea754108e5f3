package rvhv

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PagePerm represents stage-2 page permissions.
type PagePerm uint

const (
	PermRead  PagePerm = 1 << 0
	PermWrite PagePerm = 1 << 1
	PermExec  PagePerm = 1 << 2
	PermUser  PagePerm = 1 << 3
)

// pageMask is used for fast alignment checks: addr & pageMask == 0.
const pageMask = PageSize - 1

// isPageAligned returns true if addr is guest-page-aligned.
func isPageAligned(addr uint64) bool {
	return addr&pageMask == 0
}

// alignDown returns addr rounded down to its guest page boundary.
func alignDown(addr uint64) uint64 {
	return addr &^ uint64(pageMask)
}

type page struct {
	data  []byte // anonymous mmap, PageSize bytes
	perms PagePerm
}

// AddressSpace owns a contiguous guest-physical region and its stage-2
// translation root. The region is demand-backed: pages materialize on
// MapAlloc, everything else re-traps. Single-owner, not safe for
// concurrent use except Close.
type AddressSpace struct {
	base uint64
	size uint64

	root  []byte // root page-table page, mmap'd for its lifetime
	pages map[uint64]*page

	closed  bool
	closeMu sync.Mutex // Protect against concurrent Close() and finalizer
}

// NewAddressSpace creates an address space covering the guest-physical
// region [base, base+size). Both base and size must be page-aligned.
func NewAddressSpace(base, size uint64) (*AddressSpace, error) {
	if size == 0 {
		return nil, fmt.Errorf("rvhv: address space requires non-zero size")
	}
	if size > math.MaxInt32 {
		return nil, fmt.Errorf("rvhv: address space too large (max %d bytes)", math.MaxInt32)
	}
	if base > math.MaxUint64-size {
		return nil, fmt.Errorf("rvhv: guest address range would overflow")
	}
	if !isPageAligned(base) {
		return nil, fmt.Errorf("rvhv: base not page-aligned: %#x: %w", base, ErrInvalidAlignment)
	}
	if !isPageAligned(size) {
		return nil, fmt.Errorf("rvhv: size not page multiple: %d: %w", size, ErrInvalidAlignment)
	}

	root, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("rvhv: failed to allocate translation root: %w", err)
	}

	as := &AddressSpace{
		base:  base,
		size:  size,
		root:  root,
		pages: make(map[uint64]*page),
	}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(as, (*AddressSpace).finalize)
	return as, nil
}

// Root returns the physical page number of the stage-2 root page table,
// suitable for packing into hgatp.
func (as *AddressSpace) Root() uint64 {
	return uint64(uintptr(unsafe.Pointer(&as.root[0]))) >> 12
}

// Contains reports whether [gpa, gpa+size) lies inside the region.
func (as *AddressSpace) Contains(gpa, size uint64) bool {
	return gpa >= as.base && size <= as.size && gpa-as.base <= as.size-size
}

// Backed reports whether the page containing gpa has stage-2 backing.
func (as *AddressSpace) Backed(gpa uint64) bool {
	_, ok := as.pages[alignDown(gpa)]
	return ok
}

// MapAlloc backs the guest-physical range [gpa, gpa+size) with freshly
// allocated host pages. gpa and size must be page-aligned. Pages that
// are already backed are left alone, so servicing the same fault twice
// is harmless.
func (as *AddressSpace) MapAlloc(gpa, size uint64, perms PagePerm, zeroFill bool) error {
	if as == nil {
		return fmt.Errorf("rvhv: address space is nil")
	}
	if as.closed {
		return ErrSpaceClosed
	}
	if size == 0 {
		return fmt.Errorf("rvhv: map requires non-zero size")
	}
	if perms == 0 {
		return fmt.Errorf("rvhv: map requires at least one permission (read, write, exec, or user)")
	}
	validPerms := PermRead | PermWrite | PermExec | PermUser
	if perms&^validPerms != 0 {
		return fmt.Errorf("rvhv: invalid permission bits %#x (valid: %#x)", perms, validPerms)
	}
	if !isPageAligned(gpa) {
		return fmt.Errorf("rvhv: gpa not page-aligned: %#x: %w", gpa, ErrInvalidAlignment)
	}
	if !isPageAligned(size) {
		return fmt.Errorf("rvhv: size not page multiple: %d: %w", size, ErrInvalidAlignment)
	}
	if gpa > math.MaxUint64-size {
		return fmt.Errorf("rvhv: guest address range would overflow")
	}
	if !as.Contains(gpa, size) {
		return fmt.Errorf("rvhv: range %#x+%#x outside region %#x+%#x", gpa, size, as.base, as.size)
	}

	for off := uint64(0); off < size; off += PageSize {
		addr := gpa + off
		if _, ok := as.pages[addr]; ok {
			continue
		}
		data, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return fmt.Errorf("rvhv: failed to back page %#x: %w", addr, err)
		}
		if zeroFill {
			clear(data)
		}
		as.pages[addr] = &page{data: data, perms: perms}
	}

	recordMapOperation()
	return nil
}

// Write copies b into guest-physical memory starting at gpa. Every
// touched page must already be backed.
func (as *AddressSpace) Write(gpa uint64, b []byte) error {
	return as.access(gpa, b, func(dst, src []byte) { copy(dst, src) })
}

// ReadAt fills b from guest-physical memory starting at gpa. Every
// touched page must already be backed.
func (as *AddressSpace) ReadAt(gpa uint64, b []byte) error {
	return as.access(gpa, b, func(src, dst []byte) { copy(dst, src) })
}

// access walks the backed pages covering [gpa, gpa+len(b)) and hands
// each (page slice, buffer slice) pair to fn.
func (as *AddressSpace) access(gpa uint64, b []byte, fn func(pg, buf []byte)) error {
	if as == nil {
		return fmt.Errorf("rvhv: address space is nil")
	}
	if as.closed {
		return ErrSpaceClosed
	}
	if len(b) == 0 {
		return nil
	}
	size := uint64(len(b))
	if gpa > math.MaxUint64-size {
		return fmt.Errorf("rvhv: guest address range would overflow")
	}
	if !as.Contains(gpa, size) {
		return fmt.Errorf("rvhv: range %#x+%#x outside region %#x+%#x", gpa, size, as.base, as.size)
	}

	for len(b) > 0 {
		pageAddr := alignDown(gpa)
		pg, ok := as.pages[pageAddr]
		if !ok {
			return fmt.Errorf("rvhv: page %#x not backed", pageAddr)
		}
		off := gpa - pageAddr
		n := PageSize - off
		if n > uint64(len(b)) {
			n = uint64(len(b))
		}
		fn(pg.data[off:off+n], b[:n])
		gpa += n
		b = b[n:]
	}
	return nil
}

// Perms returns the permissions of the backed page containing gpa.
func (as *AddressSpace) Perms(gpa uint64) (PagePerm, error) {
	pg, ok := as.pages[alignDown(gpa)]
	if !ok {
		return 0, fmt.Errorf("rvhv: page %#x not backed", alignDown(gpa))
	}
	return pg.perms, nil
}

// BackedPages returns the backed page addresses in ascending order.
func (as *AddressSpace) BackedPages() []uint64 {
	addrs := make([]uint64, 0, len(as.pages))
	for addr := range as.pages {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Close releases the translation root and every backed page.
// Idempotent.
func (as *AddressSpace) Close() error {
	if as == nil {
		return nil
	}

	as.closeMu.Lock()
	defer as.closeMu.Unlock()

	if as.closed {
		return nil // Already closed
	}

	var firstErr error
	for addr, pg := range as.pages {
		if err := unix.Munmap(pg.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rvhv: failed to release page %#x: %w", addr, err)
		}
	}
	as.pages = nil
	if err := unix.Munmap(as.root); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("rvhv: failed to release translation root: %w", err)
	}
	as.root = nil
	as.closed = true

	// Clear finalizer since we've cleaned up properly
	runtime.SetFinalizer(as, nil)
	return firstErr
}

// finalize is called by the garbage collector as a safety net
func (as *AddressSpace) finalize() {
	if as == nil {
		return
	}
	// Use non-blocking lock to prevent deadlock in finalizers
	if as.closeMu.TryLock() {
		defer as.closeMu.Unlock()
		if !as.closed {
			for _, pg := range as.pages {
				unix.Munmap(pg.data)
			}
			as.pages = nil
			if as.root != nil {
				unix.Munmap(as.root)
				as.root = nil
			}
			as.closed = true
		}
	}
}
