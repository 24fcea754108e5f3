package rvhv

import (
	"bytes"
	"testing"
)

func TestPagePermConstants(t *testing.T) {
	if PermRead != 1<<0 {
		t.Errorf("PermRead = %d, want %d", PermRead, 1<<0)
	}
	if PermWrite != 1<<1 {
		t.Errorf("PermWrite = %d, want %d", PermWrite, 1<<1)
	}
	if PermExec != 1<<2 {
		t.Errorf("PermExec = %d, want %d", PermExec, 1<<2)
	}
	if PermUser != 1<<3 {
		t.Errorf("PermUser = %d, want %d", PermUser, 1<<3)
	}

	rwu := PermRead | PermWrite | PermUser
	if rwu != 11 {
		t.Errorf("PermRead|PermWrite|PermUser = %d, want 11", rwu)
	}
}

func TestNewAddressSpaceValidation(t *testing.T) {
	t.Run("zero size", func(t *testing.T) {
		if _, err := NewAddressSpace(GuestEntryAddr, 0); err == nil {
			t.Error("Expected error for zero size, got nil")
		}
	})

	t.Run("unaligned base", func(t *testing.T) {
		if _, err := NewAddressSpace(GuestEntryAddr+1, PageSize); err == nil {
			t.Error("Expected error for unaligned base, got nil")
		}
	})

	t.Run("unaligned size", func(t *testing.T) {
		if _, err := NewAddressSpace(GuestEntryAddr, PageSize+1); err == nil {
			t.Error("Expected error for unaligned size, got nil")
		}
	})

	t.Run("overflowing range", func(t *testing.T) {
		if _, err := NewAddressSpace(^uint64(0)&^uint64(pageMask), 2*PageSize); err == nil {
			t.Error("Expected error for overflowing range, got nil")
		}
	})

	t.Run("valid", func(t *testing.T) {
		as, err := NewAddressSpace(GuestEntryAddr, 16*PageSize)
		if err != nil {
			t.Fatalf("NewAddressSpace failed: %v", err)
		}
		defer as.Close()
		if as.Root() == 0 {
			t.Error("Root() = 0, want non-zero root PPN")
		}
	})
}

func TestMapAllocValidation(t *testing.T) {
	as, err := NewAddressSpace(GuestEntryAddr, 16*PageSize)
	if err != nil {
		t.Fatalf("NewAddressSpace failed: %v", err)
	}
	defer as.Close()

	t.Run("nil space", func(t *testing.T) {
		var nilAS *AddressSpace
		if err := nilAS.MapAlloc(GuestEntryAddr, PageSize, PermRead, true); err == nil {
			t.Error("Expected error for nil address space, got nil")
		}
	})

	t.Run("zero size", func(t *testing.T) {
		if err := as.MapAlloc(GuestEntryAddr, 0, PermRead, true); err == nil {
			t.Error("Expected error for zero size, got nil")
		}
	})

	t.Run("no permissions", func(t *testing.T) {
		if err := as.MapAlloc(GuestEntryAddr, PageSize, 0, true); err == nil {
			t.Error("Expected error for empty permissions, got nil")
		}
	})

	t.Run("invalid permission bits", func(t *testing.T) {
		if err := as.MapAlloc(GuestEntryAddr, PageSize, PagePerm(1<<7), true); err == nil {
			t.Error("Expected error for invalid permission bits, got nil")
		}
	})

	t.Run("unaligned gpa", func(t *testing.T) {
		if err := as.MapAlloc(GuestEntryAddr+1, PageSize, PermRead, true); err == nil {
			t.Error("Expected error for unaligned gpa, got nil")
		}
	})

	t.Run("unaligned size", func(t *testing.T) {
		if err := as.MapAlloc(GuestEntryAddr, PageSize+1, PermRead, true); err == nil {
			t.Error("Expected error for unaligned size, got nil")
		}
	})

	t.Run("out of region", func(t *testing.T) {
		if err := as.MapAlloc(GuestEntryAddr+16*PageSize, PageSize, PermRead, true); err == nil {
			t.Error("Expected error for out-of-region gpa, got nil")
		}
	})
}

func TestDemandBacking(t *testing.T) {
	as, err := NewAddressSpace(GuestEntryAddr, 16*PageSize)
	if err != nil {
		t.Fatalf("NewAddressSpace failed: %v", err)
	}
	defer as.Close()

	addr := GuestEntryAddr + 3*PageSize
	if as.Backed(addr) {
		t.Fatalf("page %#x backed before MapAlloc", addr)
	}

	if err := as.MapAlloc(addr, PageSize, PermRead|PermWrite|PermUser, true); err != nil {
		t.Fatalf("MapAlloc failed: %v", err)
	}
	if !as.Backed(addr) {
		t.Fatalf("page %#x not backed after MapAlloc", addr)
	}
	if !as.Backed(addr + PageSize - 1) {
		t.Error("Backed must hold for every address within the page")
	}
	if as.Backed(addr + PageSize) {
		t.Error("neighbor page reported backed")
	}

	perms, err := as.Perms(addr)
	if err != nil {
		t.Fatalf("Perms failed: %v", err)
	}
	if perms != PermRead|PermWrite|PermUser {
		t.Errorf("Perms = %#x, want %#x", perms, PermRead|PermWrite|PermUser)
	}

	pages := as.BackedPages()
	if len(pages) != 1 || pages[0] != addr {
		t.Errorf("BackedPages = %#x, want [%#x]", pages, addr)
	}
}

func TestMapAllocIdempotent(t *testing.T) {
	as, err := NewAddressSpace(GuestEntryAddr, 16*PageSize)
	if err != nil {
		t.Fatalf("NewAddressSpace failed: %v", err)
	}
	defer as.Close()

	addr := uint64(GuestEntryAddr)
	if err := as.MapAlloc(addr, PageSize, PermRead|PermWrite|PermUser, true); err != nil {
		t.Fatalf("MapAlloc failed: %v", err)
	}
	if err := as.Write(addr, []byte{0xde, 0xad, 0xbe, 0xef}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Backing the same page again must not discard its contents, so a
	// fault serviced twice stays harmless.
	if err := as.MapAlloc(addr, PageSize, PermRead|PermWrite|PermUser, true); err != nil {
		t.Fatalf("second MapAlloc failed: %v", err)
	}

	got := make([]byte, 4)
	if err := as.ReadAt(addr, got); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("page contents after re-MapAlloc = %x, want deadbeef", got)
	}
}

func TestReadWriteAcrossPages(t *testing.T) {
	as, err := NewAddressSpace(GuestEntryAddr, 16*PageSize)
	if err != nil {
		t.Fatalf("NewAddressSpace failed: %v", err)
	}
	defer as.Close()

	if err := as.MapAlloc(GuestEntryAddr, 2*PageSize, PermRead|PermWrite, true); err != nil {
		t.Fatalf("MapAlloc failed: %v", err)
	}

	// Straddle the boundary between the two pages.
	addr := GuestEntryAddr + PageSize - 4
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := as.Write(addr, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got := make([]byte, len(want))
	if err := as.ReadAt(addr, got); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round-trip across page boundary = %x, want %x", got, want)
	}
}

func TestAccessUnbackedPage(t *testing.T) {
	as, err := NewAddressSpace(GuestEntryAddr, 16*PageSize)
	if err != nil {
		t.Fatalf("NewAddressSpace failed: %v", err)
	}
	defer as.Close()

	if err := as.Write(GuestEntryAddr, []byte{1}); err == nil {
		t.Error("Write to unbacked page: expected error, got nil")
	}
	if err := as.ReadAt(GuestEntryAddr, make([]byte, 1)); err == nil {
		t.Error("ReadAt of unbacked page: expected error, got nil")
	}
}

func TestAddressSpaceClose(t *testing.T) {
	as, err := NewAddressSpace(GuestEntryAddr, 16*PageSize)
	if err != nil {
		t.Fatalf("NewAddressSpace failed: %v", err)
	}
	if err := as.MapAlloc(GuestEntryAddr, PageSize, PermRead, true); err != nil {
		t.Fatalf("MapAlloc failed: %v", err)
	}

	if err := as.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := as.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if err := as.MapAlloc(GuestEntryAddr, PageSize, PermRead, true); err == nil {
		t.Error("MapAlloc after Close: expected error, got nil")
	}
	if err := as.Write(GuestEntryAddr, []byte{1}); err == nil {
		t.Error("Write after Close: expected error, got nil")
	}
}
