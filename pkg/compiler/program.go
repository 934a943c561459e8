package compiler

import (
	"hash/maphash"
	"math"
)

// Program is a single flat instruction stream. Function bodies and
// interned static-data chunks are appended sequentially into the same
// stream (each ending in Return); "addresses" elsewhere in this package
// are indices into Code, matching how Call/PushFunction/LoadStaticData
// reference a location rather than a separate chunk table (spec.md
// §4.2.5, §6.3 — grounded on reflex-wasm/src/compiler/wasm/generate.rs's
// single linear function-table layout, adapted from a WASM module to a
// flat instruction array).
type Program struct {
	Code []Instruction
}

// NewProgram returns an empty program.
func NewProgram() *Program { return &Program{} }

func (p *Program) emit(ins Instruction) uint32 {
	addr := uint32(len(p.Code))
	p.Code = append(p.Code, ins)
	return addr
}

// Len is the address the next emitted instruction would receive.
func (p *Program) Len() uint32 { return uint32(len(p.Code)) }

var programHashSeed = maphash.MakeSeed()

// Hash derives a stable structural identity for the program, used as the
// program-hash component of the interpreter's result-cache key (spec.md
// §4.3, "keyed by program-hash ⊕ entry-point ⊕ state-id"). It is a pure
// function of Code's contents, not of the Program's address, so two
// Compiler runs that happen to produce byte-identical streams hash alike.
func (p *Program) Hash() uint64 {
	var h maphash.Hash
	h.SetSeed(programHashSeed)
	for _, ins := range p.Code {
		h.WriteByte(byte(ins.Op))
		var buf [8]byte
		putU64 := func(v uint64) {
			for i := 0; i < 8; i++ {
				buf[i] = byte(v >> (8 * i))
			}
			h.Write(buf[:])
		}
		putU64(boolToU64(ins.Bool))
		putU64(uint64(ins.Int))
		putU64(math.Float64bits(ins.Float))
		putU64(uint64(ins.UID))
		putU64(uint64(ins.Address))
		putU64(ins.Hash)
		putU64(uint64(ins.Count))
		putU64(uint64(ins.Required))
		putU64(uint64(ins.Optional))
		h.WriteString(ins.Str)
		for _, k := range ins.Keys {
			h.WriteString(k)
		}
	}
	return h.Sum64()
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
