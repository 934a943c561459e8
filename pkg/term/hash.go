package term

import (
	"encoding/binary"
	"math"
)

// hashTerm and hashCondition compute the 64-bit structural identity hash
// described in spec.md §3.1/§3.2 using a fixed-seed FNV-1a combine, so that
// two process runs (or a serialize/deserialize round trip) hash identical
// structures to identical ids (the "hash stability" property of §8).
// hash/maphash is deliberately not used here: its per-process random seed
// would break that stability invariant.
const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

type hasher struct{ h uint64 }

func newHasher() *hasher { return &hasher{h: fnvOffset64} }

func (hs *hasher) byte(b byte) {
	hs.h ^= uint64(b)
	hs.h *= fnvPrime64
}

func (hs *hasher) u64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	for _, b := range buf {
		hs.byte(b)
	}
}

func (hs *hasher) str(s string) {
	hs.u64(uint64(len(s)))
	for i := 0; i < len(s); i++ {
		hs.byte(s[i])
	}
}

func (hs *hasher) bool(b bool) {
	if b {
		hs.byte(1)
	} else {
		hs.byte(0)
	}
}

func hashTerm(t *Term) uint64 {
	hs := newHasher()
	hs.writeTerm(t)
	return hs.h
}

func (hs *hasher) writeTerm(t *Term) {
	if t == nil {
		hs.byte(0xff)
		return
	}
	hs.byte(byte(t.Kind))
	switch t.Kind {
	case KindNil:
	case KindBoolean:
		hs.bool(t.Bool)
	case KindInt:
		hs.u64(uint64(t.Int))
	case KindFloat:
		hs.u64(math.Float64bits(t.Float))
	case KindString:
		hs.str(t.Str)
	case KindSymbol:
		hs.u64(uint64(t.Sym))
	case KindTimestamp:
		hs.u64(uint64(t.Timestamp))
	case KindVariable:
		hs.u64(t.Offset)
	case KindLambda:
		hs.u64(t.NumArgs)
		hs.writeTerm(t.Body)
	case KindLet:
		hs.writeTerm(t.Init)
		hs.writeTerm(t.Body)
	case KindApplication, KindPartialApplication:
		hs.writeTerm(t.Target)
		hs.u64(uint64(len(t.Args)))
		for _, a := range t.Args {
			hs.writeTerm(a)
		}
	case KindRecursive:
		hs.writeTerm(t.Factory)
	case KindList, KindHashSet:
		hs.u64(uint64(len(t.Items)))
		for _, item := range t.Items {
			hs.writeTerm(item)
		}
	case KindRecord:
		hs.writePrototype(t.Prototype)
		for _, v := range t.Values {
			hs.writeTerm(v)
		}
	case KindConstructor:
		hs.writePrototype(t.Prototype)
	case KindHashMap:
		hs.u64(uint64(len(t.Entries)))
		for _, e := range t.Entries {
			hs.writeTerm(e.Key)
			hs.writeTerm(e.Value)
		}
	case KindSignal:
		hs.u64(uint64(len(t.Conditions)))
		for _, c := range t.Conditions {
			hs.u64(c.ID())
		}
	case KindEffect:
		hs.u64(t.Condition.ID())
	case KindLazyResult:
		hs.writeTerm(t.Value)
		for _, dep := range t.Deps.Tokens() {
			hs.u64(dep)
		}
	case KindBuiltin:
		hs.u64(uint64(t.BuiltinUID))
	case KindCompiledFunction:
		hs.u64(uint64(t.CompiledAddress))
		hs.u64(t.CompiledHash)
	}
}

func (hs *hasher) writePrototype(p *StructPrototype) {
	if p == nil {
		hs.u64(0)
		return
	}
	hs.u64(uint64(len(p.Keys)))
	for _, k := range p.Keys {
		hs.str(k)
	}
}

func hashCondition(c *Condition) uint64 {
	hs := newHasher()
	hs.byte(byte(c.Kind))
	switch c.Kind {
	case ConditionCustom:
		hs.writeTerm(c.EffectType)
		hs.writeTerm(c.Payload)
		hs.writeTerm(c.Token)
	case ConditionPending:
	case ConditionError:
		hs.writeTerm(c.ErrorPayload)
	}
	return hs.h
}
