package dash

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to pad lock words so that buckets sharing a
// segment do not false-share a cache line.
// It's automatically calculated using the `golang.org/x/sys` package.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// noCopy may be added to structs which must not be copied
// after the first use. See go vet's copylocks checker.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
