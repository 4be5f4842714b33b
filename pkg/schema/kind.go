package schema

// Kind tags one element of a flow. Every collection of a flow definition maps
// to exactly one Kind.
type Kind string

const (
	KindStart               Kind = "start"
	KindAssignment          Kind = "assignment"
	KindDecision            Kind = "decision"
	KindLoop                Kind = "loop"
	KindWait                Kind = "wait"
	KindScreen              Kind = "screen"
	KindRecordLookup        Kind = "recordLookup"
	KindRecordCreate        Kind = "recordCreate"
	KindRecordUpdate        Kind = "recordUpdate"
	KindRecordDelete        Kind = "recordDelete"
	KindRecordRollback      Kind = "recordRollback"
	KindActionCall          Kind = "actionCall"
	KindApexPluginCall      Kind = "apexPluginCall"
	KindSubflow             Kind = "subflow"
	KindCollectionProcessor Kind = "collectionProcessor"
	KindTransform           Kind = "transform"
	KindDynamicChoiceSet    Kind = "dynamicChoiceSet"
	KindVariable            Kind = "variable"
	KindTextTemplate        Kind = "textTemplate"
	KindFormula             Kind = "formula"
	KindConstant            Kind = "constant"
	KindChoice              Kind = "choice"
)

// Collection pairs a kind with the JSON key of its collection in the flow
// metadata. Collections are listed in the order elements are registered.
type Collection struct {
	Key  string
	Kind Kind
}

// Collections is the canonical collection order used by the normalizer.
var Collections = []Collection{
	{Key: "recordLookups", Kind: KindRecordLookup},
	{Key: "recordCreates", Kind: KindRecordCreate},
	{Key: "recordUpdates", Kind: KindRecordUpdate},
	{Key: "recordDeletes", Kind: KindRecordDelete},
	{Key: "recordRollbacks", Kind: KindRecordRollback},
	{Key: "assignments", Kind: KindAssignment},
	{Key: "decisions", Kind: KindDecision},
	{Key: "screens", Kind: KindScreen},
	{Key: "loops", Kind: KindLoop},
	{Key: "subflows", Kind: KindSubflow},
	{Key: "actionCalls", Kind: KindActionCall},
	{Key: "apexPluginCalls", Kind: KindApexPluginCall},
	{Key: "collectionProcessors", Kind: KindCollectionProcessor},
	{Key: "transforms", Kind: KindTransform},
	{Key: "waits", Kind: KindWait},
	{Key: "dynamicChoiceSets", Kind: KindDynamicChoiceSet},
	{Key: "variables", Kind: KindVariable},
	{Key: "textTemplates", Kind: KindTextTemplate},
	{Key: "formulas", Kind: KindFormula},
	{Key: "constants", Kind: KindConstant},
	{Key: "choices", Kind: KindChoice},
}

// CanonicalCollectionKey maps any accepted spelling of a collection key to the
// canonical plural key. Singular spellings appear in some metadata snapshots.
// Unknown keys are returned unchanged with ok=false.
func CanonicalCollectionKey(key string) (canonical string, ok bool) {
	for _, c := range Collections {
		if key == c.Key || key == string(c.Kind) {
			return c.Key, true
		}
	}
	return key, false
}

// Revisitable reports whether the linearizer may enter an element of this kind
// more than once, consuming one untaken branch per visit.
func (k Kind) Revisitable() bool {
	switch k {
	case KindDecision, KindLoop, KindWait:
		return true
	default:
		return false
	}
}

// Declarative reports whether the kind only declares a resource (no control flow).
func (k Kind) Declarative() bool {
	switch k {
	case KindVariable, KindConstant, KindFormula, KindTextTemplate, KindChoice:
		return true
	default:
		return false
	}
}

// SideEffecting reports whether elements of this kind are narrated: record
// mutations and queries, external actions and subflow invocations.
func (k Kind) SideEffecting() bool {
	switch k {
	case KindRecordCreate, KindRecordUpdate, KindRecordDelete, KindRecordLookup,
		KindActionCall, KindSubflow:
		return true
	default:
		return false
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	if k == KindStart {
		return true
	}
	for _, c := range Collections {
		if c.Kind == k {
			return true
		}
	}
	return false
}
