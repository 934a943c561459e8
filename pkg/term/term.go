package term

import (
	"fmt"
	"strconv"
	"strings"
)

// StackOffset is a de-Bruijn-style lexical scope depth, counted outward
// from the innermost enclosing binder.
type StackOffset = uint64

// MapEntry is a single key/value pair of a HashMap term. Keys and values
// are themselves Terms so that maps can be keyed by arbitrary data, not
// just strings.
type MapEntry struct {
	Key   *Term
	Value *Term
}

// Term is an immutable, content-addressed node of the Reflex intermediate
// representation. The zero value is not a valid Term; construct one of the
// New* functions instead. Every Term's id is derived structurally from its
// Kind and fields, so identity equality, hash equality, and semantic
// equality coincide (see hash.go).
type Term struct {
	Kind Kind
	id   uint64

	// primitives
	Bool      bool
	Int       int64
	Float     float64
	Str       string
	Sym       uint32
	Timestamp int64

	// binding forms
	Offset  StackOffset // Variable
	NumArgs StackOffset // Lambda
	Body    *Term       // Lambda, Let
	Init    *Term       // Let
	Target  *Term       // Application, PartialApplication
	Args    []*Term     // Application, PartialApplication
	Factory *Term       // Recursive

	// data
	Items     []*Term        // List, HashSet
	Prototype *StructPrototype // Record, Constructor
	Values    []*Term        // Record
	Entries   []MapEntry     // HashMap

	// reactive
	Conditions []*Condition   // Signal
	Condition  *Condition     // Effect
	Value      *Term          // LazyResult
	Deps       DependencyList // LazyResult

	// compiler artifacts
	BuiltinUID       uint32 // Builtin
	CompiledAddress  uint32 // CompiledFunction
	CompiledHash     uint64 // CompiledFunction
}

// StructPrototype is the ordered, immutable key list shared by a
// Constructor and every Record built from it.
type StructPrototype struct {
	Keys []string
}

// NewStructPrototype builds a prototype from an ordered key list.
func NewStructPrototype(keys ...string) *StructPrototype {
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &StructPrototype{Keys: cp}
}

func (p *StructPrototype) equal(other *StructPrototype) bool {
	if p == other {
		return true
	}
	if p == nil || other == nil || len(p.Keys) != len(other.Keys) {
		return false
	}
	for i, k := range p.Keys {
		if other.Keys[i] != k {
			return false
		}
	}
	return true
}

// ID returns the term's stable 64-bit structural identity hash.
func (t *Term) ID() uint64 {
	if t == nil {
		return 0
	}
	if t.id == 0 {
		t.id = hashTerm(t)
	}
	return t.id
}

// Equal reports whether two terms are structurally identical. Because
// identity hash equality is defined to coincide with semantic equality,
// this first compares ids and only falls back to a deep compare on
// collision.
func (t *Term) Equal(other *Term) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	if t.ID() != other.ID() {
		return false
	}
	return t.deepEqual(other)
}

func (t *Term) deepEqual(o *Term) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindNil:
		return true
	case KindBoolean:
		return t.Bool == o.Bool
	case KindInt:
		return t.Int == o.Int
	case KindFloat:
		return t.Float == o.Float
	case KindString:
		return t.Str == o.Str
	case KindSymbol:
		return t.Sym == o.Sym
	case KindTimestamp:
		return t.Timestamp == o.Timestamp
	case KindVariable:
		return t.Offset == o.Offset
	case KindLambda:
		return t.NumArgs == o.NumArgs && t.Body.Equal(o.Body)
	case KindLet:
		return t.Init.Equal(o.Init) && t.Body.Equal(o.Body)
	case KindApplication, KindPartialApplication:
		if !t.Target.Equal(o.Target) || len(t.Args) != len(o.Args) {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(o.Args[i]) {
				return false
			}
		}
		return true
	case KindRecursive:
		return t.Factory.Equal(o.Factory)
	case KindList, KindHashSet:
		if len(t.Items) != len(o.Items) {
			return false
		}
		for i := range t.Items {
			if !t.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		if !t.Prototype.equal(o.Prototype) || len(t.Values) != len(o.Values) {
			return false
		}
		for i := range t.Values {
			if !t.Values[i].Equal(o.Values[i]) {
				return false
			}
		}
		return true
	case KindConstructor:
		return t.Prototype.equal(o.Prototype)
	case KindHashMap:
		if len(t.Entries) != len(o.Entries) {
			return false
		}
		for i := range t.Entries {
			if !t.Entries[i].Key.Equal(o.Entries[i].Key) || !t.Entries[i].Value.Equal(o.Entries[i].Value) {
				return false
			}
		}
		return true
	case KindSignal:
		if len(t.Conditions) != len(o.Conditions) {
			return false
		}
		for i := range t.Conditions {
			if t.Conditions[i].ID() != o.Conditions[i].ID() {
				return false
			}
		}
		return true
	case KindEffect:
		return t.Condition.ID() == o.Condition.ID()
	case KindLazyResult:
		return t.Value.Equal(o.Value) && t.Deps.Equal(o.Deps)
	case KindBuiltin:
		return t.BuiltinUID == o.BuiltinUID
	case KindCompiledFunction:
		return t.CompiledAddress == o.CompiledAddress && t.CompiledHash == o.CompiledHash
	default:
		return false
	}
}

func (t *Term) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindNil:
		return "null"
	case KindBoolean:
		return strconv.FormatBool(t.Bool)
	case KindInt:
		return strconv.FormatInt(t.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(t.Float, 'g', -1, 64)
	case KindString:
		return strconv.Quote(t.Str)
	case KindSymbol:
		return fmt.Sprintf("Symbol(%d)", t.Sym)
	case KindTimestamp:
		return fmt.Sprintf("Timestamp(%d)", t.Timestamp)
	case KindVariable:
		return fmt.Sprintf("<var:%d>", t.Offset)
	case KindLambda:
		return fmt.Sprintf("<function:%d>", t.NumArgs)
	case KindLet:
		return fmt.Sprintf("let %s in %s", t.Init, t.Body)
	case KindApplication:
		return fmt.Sprintf("%s(%s)", t.Target, joinTerms(t.Args))
	case KindPartialApplication:
		return fmt.Sprintf("%s<%s>", t.Target, joinTerms(t.Args))
	case KindRecursive:
		return fmt.Sprintf("<recursive:%s>", t.Factory)
	case KindList:
		return fmt.Sprintf("[%s]", joinTerms(t.Items))
	case KindHashSet:
		return fmt.Sprintf("{%s}", joinTerms(t.Items))
	case KindRecord:
		return fmt.Sprintf("{%s}", joinRecord(t.Prototype, t.Values))
	case KindConstructor:
		return fmt.Sprintf("<constructor:%v>", t.Prototype.Keys)
	case KindHashMap:
		parts := make([]string, len(t.Entries))
		for i, e := range t.Entries {
			parts[i] = fmt.Sprintf("%s: %s", e.Key, e.Value)
		}
		return fmt.Sprintf("Map{%s}", strings.Join(parts, ", "))
	case KindSignal:
		parts := make([]string, len(t.Conditions))
		for i, c := range t.Conditions {
			parts[i] = c.String()
		}
		return fmt.Sprintf("Signal(%s)", strings.Join(parts, ", "))
	case KindEffect:
		return fmt.Sprintf("Effect(%s)", t.Condition)
	case KindLazyResult:
		return fmt.Sprintf("LazyResult(%s)", t.Value)
	case KindBuiltin:
		return fmt.Sprintf("<builtin:%d>", t.BuiltinUID)
	case KindCompiledFunction:
		return fmt.Sprintf("<compiled:%d@%d>", t.CompiledHash, t.CompiledAddress)
	default:
		return "<unknown>"
	}
}

func joinTerms(terms []*Term) string {
	parts := make([]string, len(terms))
	for i, a := range terms {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func joinRecord(proto *StructPrototype, values []*Term) string {
	parts := make([]string, 0, len(values))
	for i, v := range values {
		key := ""
		if proto != nil && i < len(proto.Keys) {
			key = proto.Keys[i]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", key, v))
	}
	return strings.Join(parts, ", ")
}
