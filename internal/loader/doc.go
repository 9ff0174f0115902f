// Package loader reads and writes model weights in the SafeTensors format.
//
// Layout:
//
//	[8 bytes: header size N, uint64 LE]
//	[N bytes: JSON header]
//	[tensor data]
//
// The header maps tensor names to dtype, shape and byte offsets relative to
// the start of the data section, plus an optional "__metadata__" string map.
//
// On unix the file is memory-mapped and tensors are decoded straight from the
// mapping; elsewhere, or when mapping fails, tensors are read with ReadAt.
//
// Example:
//
//	f, err := loader.Open("resnet18.safetensors")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	sd, err := f.StateDict()
package loader
