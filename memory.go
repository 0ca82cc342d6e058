package main

// Virtual memory: a 2GiB guest address space in 4KiB pages. Every guest
// virtual address is word-aligned. A page table is a flat array indexed
// by virtual page number whose entries hold host frame offsets; entry 0
// means unmapped.
//
// Physical memory is a bump pool growing in megabyte blocks. Frames are
// byte offsets into the pool; offset 0 is burned at construction so that
// a zero page table entry can mean unmapped.

const MEGABYTE = 1048576

const VIRTUALMEMORYSIZE = 2147483648 // 2GB of virtual memory

const MAX_MEGABYTES = 4096

// pageAllocator hands out zeroed 4KiB frames from megabyte blocks. It
// tolerates twice as much memory mapped on demand than configured before
// giving up. The free list of returned frames is reserved for future use
// and not currently populated.
type pageAllocator struct {
	memory []uint32 // the frame pool, indexed by frame offset / WORDSIZE

	budget          uint32 // configured page frame memory in bytes
	nextPageFrame   uint32
	allocatedMemory uint32
	freeMemory      uint32

	freeList []uint32
}

func newPageAllocator(megabytes uint32) *pageAllocator {
	if megabytes > MAX_MEGABYTES {
		megabytes = MAX_MEGABYTES
	}
	return &pageAllocator{
		// burn one page so that no valid frame is 0
		memory: make([]uint32, PAGESIZE/WORDSIZE),
		budget: megabytes * MEGABYTE,
	}
}

func (pa *pageAllocator) available() bool {
	if pa.freeMemory > 0 {
		return true
	}
	return pa.allocatedMemory+MEGABYTE <= pa.budget
}

func (pa *pageAllocator) excess() bool {
	if pa.available() {
		return true
	}
	// tolerate twice as much memory mapped on demand than physically available
	return pa.allocatedMemory+MEGABYTE <= 2*pa.budget
}

func (pa *pageAllocator) used() uint32 {
	return pa.allocatedMemory - pa.freeMemory
}

// palloc returns a zeroed page frame, or an error when even the excess
// budget is exhausted.
func (pa *pageAllocator) palloc() (uint32, error) {
	// assert: budget is equal to or a multiple of MEGABYTE
	if pa.freeMemory == 0 {
		if !pa.excess() {
			return 0, exitError(EXITCODE_OUTOFPHYSICALMEMORY, "palloc out of physical memory")
		}
		pa.freeMemory = MEGABYTE

		block := uint32(len(pa.memory)) * WORDSIZE

		pa.memory = append(pa.memory, make([]uint32, MEGABYTE/WORDSIZE)...)

		pa.allocatedMemory += pa.freeMemory

		// page frames must be page-aligned to work as page table indices
		pa.nextPageFrame = roundUp(block, PAGESIZE)

		if pa.nextPageFrame > block {
			// losing one page frame to fragmentation
			pa.freeMemory -= PAGESIZE
		}
	}

	frame := pa.nextPageFrame

	pa.nextPageFrame += PAGESIZE
	pa.freeMemory -= PAGESIZE

	return frame, nil
}

func (pa *pageAllocator) pfree(frame uint32) {
	// TODO: populate the free list and reuse frames
}

func (pa *pageAllocator) loadPhysical(paddr uint32) uint32 {
	return pa.memory[paddr/WORDSIZE]
}

func (pa *pageAllocator) storePhysical(paddr, data uint32) {
	pa.memory[paddr/WORDSIZE] = data
}

// ---------------------------------------------------------------------
// page tables

func newPageTable() []uint32 {
	return make([]uint32, VIRTUALMEMORYSIZE/PAGESIZE)
}

func getFrameForPage(table []uint32, page uint32) uint32 {
	return table[page]
}

func isPageMapped(table []uint32, page uint32) bool {
	return getFrameForPage(table, page) != 0
}

func isValidVirtualAddress(vaddr uint32) bool {
	if vaddr < VIRTUALMEMORYSIZE {
		// memory must be word-addressed for lack of byte-sized data type
		return vaddr%REGISTERSIZE == 0
	}
	return false
}

func getPageOfVirtualAddress(vaddr uint32) uint32 {
	return vaddr / PAGESIZE
}

func isVirtualAddressMapped(table []uint32, vaddr uint32) bool {
	// assert: isValidVirtualAddress(vaddr)
	return isPageMapped(table, getPageOfVirtualAddress(vaddr))
}

// tlb maps a valid, mapped virtual address to its physical address.
func tlb(table []uint32, vaddr uint32) uint32 {
	// assert: isValidVirtualAddress(vaddr)
	// assert: isVirtualAddressMapped(table, vaddr)
	page := getPageOfVirtualAddress(vaddr)

	frame := getFrameForPage(table, page)

	return vaddr - page*PAGESIZE + frame
}

func (pa *pageAllocator) loadVirtual(table []uint32, vaddr uint32) uint32 {
	return pa.loadPhysical(tlb(table, vaddr))
}

func (pa *pageAllocator) storeVirtual(table []uint32, vaddr, data uint32) {
	pa.storePhysical(tlb(table, vaddr), data)
}
