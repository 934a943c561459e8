// Package compiler lowers Reflex terms into the stack-machine bytecode
// the interpreter (pkg/vm) runs (spec.md §4.2, component D/E). As with
// pkg/term and pkg/rewrite, an Instruction is a tagged union (an Op byte
// plus whichever of its fields that op actually uses) rather than one Go
// type per opcode, matching the same design note that shaped the term
// model: this is a closed, exhaustively-switched instruction set, not an
// open type hierarchy.
package compiler

import "fmt"

// Op identifies a bytecode instruction (spec.md §4.2.7, "essential
// subset").
type Op uint8

const (
	OpPushNil Op = iota
	OpPushBoolean
	OpPushInt
	OpPushFloat
	OpPushString
	OpPushSymbol
	OpPushTimestamp
	OpPushLocal
	OpPushBuiltin
	OpPushFunction
	OpLoadStaticData
	OpConstructList
	OpConstructHashMap
	OpConstructHashSet
	OpConstructConstructor
	OpConstructApplication
	OpConstructPartialApplication
	OpConstructCustomCondition
	OpConstructPendingCondition
	OpConstructErrorCondition
	OpConstructLazyResult
	OpCombineSignals
	OpLoadEffect
	OpEvaluate
	OpApply
	OpCall
	OpSquash
	OpReturn
	OpFunction
)

var opNames = [...]string{
	OpPushNil:                     "PushNil",
	OpPushBoolean:                 "PushBoolean",
	OpPushInt:                     "PushInt",
	OpPushFloat:                   "PushFloat",
	OpPushString:                  "PushString",
	OpPushSymbol:                  "PushSymbol",
	OpPushTimestamp:               "PushTimestamp",
	OpPushLocal:                   "PushLocal",
	OpPushBuiltin:                 "PushBuiltin",
	OpPushFunction:                "PushFunction",
	OpLoadStaticData:              "LoadStaticData",
	OpConstructList:               "ConstructList",
	OpConstructHashMap:            "ConstructHashMap",
	OpConstructHashSet:            "ConstructHashSet",
	OpConstructConstructor:        "ConstructConstructor",
	OpConstructApplication:        "ConstructApplication",
	OpConstructPartialApplication: "ConstructPartialApplication",
	OpConstructCustomCondition:    "ConstructCustomCondition",
	OpConstructPendingCondition:   "ConstructPendingCondition",
	OpConstructErrorCondition:     "ConstructErrorCondition",
	OpConstructLazyResult:         "ConstructLazyResult",
	OpCombineSignals:              "CombineSignals",
	OpLoadEffect:                  "LoadEffect",
	OpEvaluate:                    "Evaluate",
	OpApply:                       "Apply",
	OpCall:                        "Call",
	OpSquash:                      "Squash",
	OpReturn:                      "Return",
	OpFunction:                    "Function",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "Unknown"
}

// Instruction is one bytecode op plus whichever operand fields it needs.
// Unused fields are left zero; Op alone determines which are meaningful.
type Instruction struct {
	Op Op

	Bool    bool
	Int     int64
	Float   float64
	Str     string
	UID     uint32
	Address uint32
	Hash    uint64
	Count   int

	// OpFunction only
	Required int
	Optional int

	// OpConstructConstructor only
	Keys []string
}

func (i Instruction) String() string {
	switch i.Op {
	case OpPushBoolean:
		return fmt.Sprintf("PushBoolean %v", i.Bool)
	case OpPushInt:
		return fmt.Sprintf("PushInt %d", i.Int)
	case OpPushFloat:
		return fmt.Sprintf("PushFloat %g", i.Float)
	case OpPushString:
		return fmt.Sprintf("PushString %q", i.Str)
	case OpPushSymbol:
		return fmt.Sprintf("PushSymbol %d", i.UID)
	case OpPushTimestamp:
		return fmt.Sprintf("PushTimestamp %d", i.Int)
	case OpPushLocal:
		return fmt.Sprintf("PushLocal %d", i.Count)
	case OpPushBuiltin:
		return fmt.Sprintf("PushBuiltin %d", i.UID)
	case OpPushFunction:
		return fmt.Sprintf("PushFunction %d#%d", i.Address, i.Hash)
	case OpLoadStaticData:
		return fmt.Sprintf("LoadStaticData %d", i.Address)
	case OpConstructList, OpConstructHashMap, OpConstructHashSet, OpConstructApplication,
		OpConstructPartialApplication, OpCombineSignals:
		return fmt.Sprintf("%s %d", i.Op, i.Count)
	case OpConstructConstructor:
		return fmt.Sprintf("ConstructConstructor %v", i.Keys)
	case OpApply:
		return fmt.Sprintf("Apply %d", i.Count)
	case OpCall:
		return fmt.Sprintf("Call %d#%d %d", i.Address, i.Hash, i.Count)
	case OpSquash:
		return fmt.Sprintf("Squash %d", i.Count)
	case OpFunction:
		return fmt.Sprintf("Function #%d required=%d optional=%d", i.Hash, i.Required, i.Optional)
	default:
		return i.Op.String()
	}
}
