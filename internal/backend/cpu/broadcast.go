package cpu

import "github.com/born-ml/zooexport/internal/tensor"

// broadcaster maps flat indices of a broadcast result back into one operand.
// in holds the operand stride for each result axis, 0 where the operand is
// padded or has size 1 on that axis.
type broadcaster struct {
	out, in []int
}

func newBroadcaster(in, out tensor.Shape) broadcaster {
	src := in.ComputeStrides()
	pad := len(out) - len(in)
	b := broadcaster{out: out.ComputeStrides(), in: make([]int, len(out))}
	for axis := range out {
		if j := axis - pad; j >= 0 && in[j] != 1 {
			b.in[axis] = src[j]
		}
	}
	return b
}

func (b broadcaster) index(i int) int {
	off := 0
	for axis, s := range b.out {
		off += i / s * b.in[axis]
		i %= s
	}
	return off
}
