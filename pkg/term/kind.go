// Package term implements Reflex's immutable, content-addressed
// intermediate representation: the lambda calculus with lexically-scoped
// de Bruijn variables, reactive signals, records, and collections.
//
// Every Term is a tagged union rather than a type hierarchy: a single
// Kind byte selects which of the struct's fields are meaningful, and every
// cross-cutting operation (hashing, graph-node metrics, substitution) is a
// switch over Kind rather than a virtual method per variant. This mirrors
// the original Rust `enum Term` this package is distilled from, and keeps
// exhaustiveness checkable by inspection instead of by the type system.
package term

// Kind identifies which variant of Term a node represents.
type Kind uint8

const (
	KindNil Kind = iota
	KindBoolean
	KindInt
	KindFloat
	KindString
	KindSymbol
	KindTimestamp
	KindVariable
	KindLambda
	KindLet
	KindPartialApplication
	KindApplication
	KindRecursive
	KindList
	KindRecord
	KindConstructor
	KindHashMap
	KindHashSet
	KindSignal
	KindEffect
	KindLazyResult
	KindBuiltin
	KindCompiledFunction
)

var kindNames = [...]string{
	KindNil:                "Nil",
	KindBoolean:            "Boolean",
	KindInt:                "Int",
	KindFloat:              "Float",
	KindString:             "String",
	KindSymbol:             "Symbol",
	KindTimestamp:          "Timestamp",
	KindVariable:           "Variable",
	KindLambda:             "Lambda",
	KindLet:                "Let",
	KindPartialApplication: "PartialApplication",
	KindApplication:        "Application",
	KindRecursive:          "Recursive",
	KindList:               "List",
	KindRecord:             "Record",
	KindConstructor:        "Constructor",
	KindHashMap:            "HashMap",
	KindHashSet:            "HashSet",
	KindSignal:             "Signal",
	KindEffect:             "Effect",
	KindLazyResult:         "LazyResult",
	KindBuiltin:            "Builtin",
	KindCompiledFunction:   "CompiledFunction",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Unknown"
}
