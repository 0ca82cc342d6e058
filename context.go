package main

// Context is the unit of execution: registers, page table, heap range,
// break, exception slot, and the parent link. A context with a nil parent
// is local to this emulator; otherwise it is the cached shadow of a
// context living at vctxt inside the parent's address space (nested
// virtualization).
type Context struct {
	next, prev *Context

	pc   uint32
	regs [NUMBEROFREGISTERS]uint32
	pt   []uint32

	loPage uint32 // lowest low unmapped page
	mePage uint32 // highest low unmapped page
	hiPage uint32 // highest high unmapped page

	originalBreak uint32
	programBreak  uint32

	exception    uint32
	faultingPage uint32

	exitCode uint32

	parent *Context // nil means this context is local to this emulator
	vctxt  uint32   // address of the shadow in the parent's address space

	// id is the opaque word handed to guests in place of a host pointer
	// when this context is local
	id uint32

	name string
}

// Word offsets of the context fields as laid out by a guest kernel; used
// to read and write the shadow through the parent's page table.
const (
	vctxtProgramCounter = 2 * WORDSIZE
	vctxtRegs           = 3 * WORDSIZE
	vctxtPageTable      = 4 * WORDSIZE
	vctxtLoPage         = 5 * WORDSIZE
	vctxtMePage         = 6 * WORDSIZE
	vctxtHiPage         = 7 * WORDSIZE
	vctxtProgramBreak   = 9 * WORDSIZE
	vctxtException      = 10 * WORDSIZE
	vctxtFaultingPage   = 11 * WORDSIZE
	vctxtExitCode       = 12 * WORDSIZE
)

// allocateContext takes a context off the free list or makes a new one,
// resets it, and links it into the used list.
func (m *Machine) allocateContext(parent *Context, vctxt uint32) *Context {
	var context *Context

	if m.freeContexts == nil {
		context = new(Context)

		m.nextContextID += PAGESIZE
		context.id = m.nextContextID
	} else {
		context = m.freeContexts
		m.freeContexts = context.next
	}

	context.next = m.usedContexts
	context.prev = nil

	if m.usedContexts != nil {
		m.usedContexts.prev = context
	}
	m.usedContexts = context

	context.pc = 0
	context.regs = [NUMBEROFREGISTERS]uint32{}
	context.pt = newPageTable()

	// determine range of recently mapped pages
	context.loPage = 0
	context.mePage = 0
	context.hiPage = getPageOfVirtualAddress(VIRTUALMEMORYSIZE - REGISTERSIZE)

	context.originalBreak = 0
	context.programBreak = 0

	context.exception = EXCEPTION_NOEXCEPTION
	context.faultingPage = 0

	context.exitCode = EXITCODE_NOERROR

	context.parent = parent
	context.vctxt = vctxt

	context.name = ""

	return context
}

func (m *Machine) findContext(parent *Context, vctxt uint32) *Context {
	for context := m.usedContexts; context != nil; context = context.next {
		if context.parent == parent && context.vctxt == vctxt {
			return context
		}
	}
	return nil
}

func (m *Machine) freeContext(context *Context) {
	context.next = m.freeContexts
	m.freeContexts = context
}

// deleteContext unlinks a context from the used list and recycles it.
func (m *Machine) deleteContext(context *Context) {
	if context.next != nil {
		context.next.prev = context.prev
	}
	if context.prev != nil {
		context.prev.next = context.next
		context.prev = nil
	} else {
		m.usedContexts = context.next
	}
	m.freeContext(context)
}

// createContext creates a context with the given parent and shadow.
func (m *Machine) createContext(parent *Context, vctxt uint32) *Context {
	context := m.allocateContext(parent, vctxt)

	if m.currentContext == nil {
		m.currentContext = context
	}

	return context
}

// cacheContext finds or creates the shadow for a virtual child context on
// this boot level.
func (m *Machine) cacheContext(vctxt uint32) *Context {
	context := m.findContext(m.currentContext, vctxt)

	if context == nil {
		context = m.createContext(m.currentContext, vctxt)
	}

	return context
}

// mapPage installs a frame for a page and maintains the mapped heap range
// used when mirroring shadows.
func (m *Machine) mapPage(context *Context, page, frame uint32) {
	// assert: 0 <= page < VIRTUALMEMORYSIZE / PAGESIZE
	context.pt[page] = frame

	if page <= getPageOfVirtualAddress(context.programBreak-REGISTERSIZE) {
		// exploit spatial locality in page table caching
		if page < context.loPage {
			context.loPage = page
		} else if page > context.mePage {
			context.mePage = page
		}
	}
}

// saveContext copies the machine state of a virtualized context back into
// its shadow in the parent's address space.
func (m *Machine) saveContext(context *Context) {
	context.pc = m.pc

	if context.parent == nil {
		return
	}

	parentTable := context.parent.pt
	vctxt := context.vctxt

	m.pa.storeVirtual(parentTable, vctxt+vctxtProgramCounter, context.pc)

	vregs := m.pa.loadVirtual(parentTable, vctxt+vctxtRegs)

	for r := uint32(0); r < NUMBEROFREGISTERS; r++ {
		m.pa.storeVirtual(parentTable, vregs+r*REGISTERSIZE, context.regs[r])
	}

	m.pa.storeVirtual(parentTable, vctxt+vctxtProgramBreak, context.programBreak)

	m.pa.storeVirtual(parentTable, vctxt+vctxtException, context.exception)
	m.pa.storeVirtual(parentTable, vctxt+vctxtFaultingPage, context.faultingPage)
	m.pa.storeVirtual(parentTable, vctxt+vctxtExitCode, context.exitCode)
}

// restoreContext refreshes a virtualized context from its shadow and
// mirrors newly mapped pages one level up: the shadow's page table is
// walked from loPage up to mePage and from hiPage down until the first
// unmapped page.
func (m *Machine) restoreContext(context *Context) {
	if context.parent == nil {
		return
	}

	parentTable := context.parent.pt
	vctxt := context.vctxt

	context.pc = m.pa.loadVirtual(parentTable, vctxt+vctxtProgramCounter)

	vregs := m.pa.loadVirtual(parentTable, vctxt+vctxtRegs)

	for r := uint32(0); r < NUMBEROFREGISTERS; r++ {
		context.regs[r] = m.pa.loadVirtual(parentTable, vregs+r*REGISTERSIZE)
	}

	context.programBreak = m.pa.loadVirtual(parentTable, vctxt+vctxtProgramBreak)

	context.exception = m.pa.loadVirtual(parentTable, vctxt+vctxtException)
	context.faultingPage = m.pa.loadVirtual(parentTable, vctxt+vctxtFaultingPage)
	context.exitCode = m.pa.loadVirtual(parentTable, vctxt+vctxtExitCode)

	table := m.pa.loadVirtual(parentTable, vctxt+vctxtPageTable)

	// assert: the context page table is only mapped from beginning up and
	// end down

	page := m.pa.loadVirtual(parentTable, vctxt+vctxtLoPage)
	me := m.pa.loadVirtual(parentTable, vctxt+vctxtMePage)

	for page <= me {
		if isVirtualAddressMapped(parentTable, table+page*WORDSIZE) {
			frame := m.pa.loadVirtual(parentTable, table+page*WORDSIZE)
			if frame != 0 {
				m.mapPage(context, page, getFrameForPage(parentTable, getPageOfVirtualAddress(frame)))
			}
		}
		page++
	}

	m.pa.storeVirtual(parentTable, vctxt+vctxtLoPage, page)

	page = m.pa.loadVirtual(parentTable, vctxt+vctxtHiPage)

	var frame uint32
	if isVirtualAddressMapped(parentTable, table+page*WORDSIZE) {
		frame = m.pa.loadVirtual(parentTable, table+page*WORDSIZE)
	}

	for frame != 0 {
		m.mapPage(context, page, getFrameForPage(parentTable, getPageOfVirtualAddress(frame)))

		page--

		if isVirtualAddressMapped(parentTable, table+page*WORDSIZE) {
			frame = m.pa.loadVirtual(parentTable, table+page*WORDSIZE)
		} else {
			frame = 0
		}
	}

	m.pa.storeVirtual(parentTable, vctxt+vctxtHiPage, page)
}
