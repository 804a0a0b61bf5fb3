package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right
	// by PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's base page size in bytes.
	PageSize = Size(1 << PageShift)

	// SuperpageShift is equal to log2(SuperpageSize).
	SuperpageShift = 21

	// SuperpageSize defines the size of a 2MB superpage in bytes.
	SuperpageSize = Size(1 << SuperpageShift)

	// FramesPerSuperpage is the number of base-size frames that make up a
	// superpage.
	FramesPerSuperpage = uint64(SuperpageSize / PageSize)
)
