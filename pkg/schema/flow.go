package schema

import (
	"strconv"
)

// FlowDefinition is the Metadata object of a Salesforce Flow as returned by the
// tooling API. Collections are keyed by their canonical plural names.
type FlowDefinition struct {
	Label                 string  `json:"label,omitempty"`
	Description           string  `json:"description,omitempty"`
	ProcessType           string  `json:"processType,omitempty"`
	Status                string  `json:"status,omitempty"`
	APIVersion            float64 `json:"apiVersion,omitempty"`
	StartElementReference string  `json:"startElementReference,omitempty"`
	Start                 *Start  `json:"start,omitempty"`

	RecordLookups        []RecordLookup        `json:"recordLookups,omitempty"`
	RecordCreates        []RecordCreate        `json:"recordCreates,omitempty"`
	RecordUpdates        []RecordUpdate        `json:"recordUpdates,omitempty"`
	RecordDeletes        []RecordDelete        `json:"recordDeletes,omitempty"`
	RecordRollbacks      []RecordRollback      `json:"recordRollbacks,omitempty"`
	Assignments          []Assignment          `json:"assignments,omitempty"`
	Decisions            []Decision            `json:"decisions,omitempty"`
	Screens              []Screen              `json:"screens,omitempty"`
	Loops                []Loop                `json:"loops,omitempty"`
	Subflows             []Subflow             `json:"subflows,omitempty"`
	ActionCalls          []ActionCall          `json:"actionCalls,omitempty"`
	ApexPluginCalls      []ApexPluginCall      `json:"apexPluginCalls,omitempty"`
	CollectionProcessors []CollectionProcessor `json:"collectionProcessors,omitempty"`
	Transforms           []Transform           `json:"transforms,omitempty"`
	Waits                []Wait                `json:"waits,omitempty"`
	DynamicChoiceSets    []DynamicChoiceSet    `json:"dynamicChoiceSets,omitempty"`
	Variables            []Variable            `json:"variables,omitempty"`
	TextTemplates        []TextTemplate        `json:"textTemplates,omitempty"`
	Formulas             []Formula             `json:"formulas,omitempty"`
	Constants            []Constant            `json:"constants,omitempty"`
	Choices              []Choice              `json:"choices,omitempty"`
}

// Collection returns the elements of one kind in declaration order.
// Start is not a collection and yields nil.
func (d *FlowDefinition) Collection(k Kind) []Node {
	switch k {
	case KindRecordLookup:
		return nodes(d.RecordLookups)
	case KindRecordCreate:
		return nodes(d.RecordCreates)
	case KindRecordUpdate:
		return nodes(d.RecordUpdates)
	case KindRecordDelete:
		return nodes(d.RecordDeletes)
	case KindRecordRollback:
		return nodes(d.RecordRollbacks)
	case KindAssignment:
		return nodes(d.Assignments)
	case KindDecision:
		return nodes(d.Decisions)
	case KindScreen:
		return nodes(d.Screens)
	case KindLoop:
		return nodes(d.Loops)
	case KindSubflow:
		return nodes(d.Subflows)
	case KindActionCall:
		return nodes(d.ActionCalls)
	case KindApexPluginCall:
		return nodes(d.ApexPluginCalls)
	case KindCollectionProcessor:
		return nodes(d.CollectionProcessors)
	case KindTransform:
		return nodes(d.Transforms)
	case KindWait:
		return nodes(d.Waits)
	case KindDynamicChoiceSet:
		return nodes(d.DynamicChoiceSets)
	case KindVariable:
		return nodes(d.Variables)
	case KindTextTemplate:
		return nodes(d.TextTemplates)
	case KindFormula:
		return nodes(d.Formulas)
	case KindConstant:
		return nodes(d.Constants)
	case KindChoice:
		return nodes(d.Choices)
	default:
		return nil
	}
}

// nodes converts a slice of element values into pointers typed as Node, so
// the caller sees the definition's own storage.
func nodes[T any, P interface {
	*T
	Node
}](items []T) []Node {
	if len(items) == 0 {
		return nil
	}
	out := make([]Node, len(items))
	for i := range items {
		out[i] = P(&items[i])
	}
	return out
}

// Node is the closed set of element payloads. Only types declared in this
// package implement it.
type Node interface {
	Kind() Kind
	Header() Base
	sealed()
}

// Base carries the identity and human metadata shared by every element.
type Base struct {
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// Header returns the element's identity.
func (b Base) Header() Base { return b }

func (Base) sealed() {}

// Connector is a directed edge to another element. An empty target ends the path.
type Connector struct {
	TargetReference string `json:"targetReference,omitempty"`
	IsGoTo          bool   `json:"isGoTo,omitempty"`
}

// Target returns the connector's target, or "" for a nil connector.
func (c *Connector) Target() string {
	if c == nil {
		return ""
	}
	return c.TargetReference
}

// Links are the connectors of a single-path element.
type Links struct {
	Connector             *Connector `json:"connector,omitempty"`
	DefaultConnector      *Connector `json:"defaultConnector,omitempty"`
	DefaultConnectorLabel string     `json:"defaultConnectorLabel,omitempty"`
	FaultConnector        *Connector `json:"faultConnector,omitempty"`
}

// Next returns the primary target, falling back to the default connector.
func (l Links) Next() string {
	if t := l.Connector.Target(); t != "" {
		return t
	}
	return l.DefaultConnector.Target()
}

// Fault returns the fault connector target.
func (l Links) Fault() string { return l.FaultConnector.Target() }

// Linked is implemented by every single-path element kind.
type Linked interface {
	Node
	Connectors() Links
}

// Connectors returns the element's connectors.
func (l Links) Connectors() Links { return l }

// Value is a typed literal or reference. At most one field is expected to be set.
type Value struct {
	ApexValue        *string  `json:"apexValue,omitempty"`
	BooleanValue     *bool    `json:"booleanValue,omitempty"`
	DateTimeValue    *string  `json:"dateTimeValue,omitempty"`
	DateValue        *string  `json:"dateValue,omitempty"`
	ElementReference *string  `json:"elementReference,omitempty"`
	NumberValue      *float64 `json:"numberValue,omitempty"`
	SObjectValue     *string  `json:"sobjectValue,omitempty"`
	StringValue      *string  `json:"stringValue,omitempty"`
}

// String renders the first populated field in a fixed precedence order,
// or "null" when the value is empty.
func (v *Value) String() string {
	if v == nil {
		return "null"
	}
	switch {
	case v.ApexValue != nil:
		return *v.ApexValue
	case v.BooleanValue != nil:
		return strconv.FormatBool(*v.BooleanValue)
	case v.DateTimeValue != nil:
		return *v.DateTimeValue
	case v.DateValue != nil:
		return *v.DateValue
	case v.ElementReference != nil:
		return *v.ElementReference
	case v.NumberValue != nil:
		return strconv.FormatFloat(*v.NumberValue, 'f', -1, 64)
	case v.SObjectValue != nil:
		return *v.SObjectValue
	case v.StringValue != nil:
		return *v.StringValue
	default:
		return "null"
	}
}

// Reference returns the element reference, or "" for literals.
func (v *Value) Reference() string {
	if v == nil || v.ElementReference == nil {
		return ""
	}
	return *v.ElementReference
}

// FieldOperation is a filter, condition, assignment item or input/output
// assignment. The left side is whichever of Field, AssignToReference or
// LeftValueReference is present.
type FieldOperation struct {
	Field              string `json:"field,omitempty"`
	AssignToReference  string `json:"assignToReference,omitempty"`
	LeftValueReference string `json:"leftValueReference,omitempty"`
	Operator           string `json:"operator,omitempty"`
	Value              *Value `json:"value,omitempty"`
	RightValue         *Value `json:"rightValue,omitempty"`
}

// Left returns the left-hand side of the operation.
func (f FieldOperation) Left() string {
	switch {
	case f.Field != "":
		return f.Field
	case f.AssignToReference != "":
		return f.AssignToReference
	default:
		return f.LeftValueReference
	}
}

// Right returns the right-hand side of the operation.
func (f FieldOperation) Right() *Value {
	if f.Value != nil {
		return f.Value
	}
	return f.RightValue
}

// Parameter is a named action input or output.
type Parameter struct {
	Name              string `json:"name"`
	Value             *Value `json:"value,omitempty"`
	AssignToReference string `json:"assignToReference,omitempty"`
}

// IOParameters are the input/output blocks shared by invocable elements.
type IOParameters struct {
	InputAssignments  []FieldOperation `json:"inputAssignments,omitempty"`
	OutputAssignments []FieldOperation `json:"outputAssignments,omitempty"`
	InputParameters   []Parameter      `json:"inputParameters,omitempty"`
	OutputParameters  []Parameter      `json:"outputParameters,omitempty"`
}

// Start is the entry descriptor of a flow.
type Start struct {
	Connector                              *Connector       `json:"connector,omitempty"`
	ScheduledPaths                         []ScheduledPath  `json:"scheduledPaths,omitempty"`
	TriggerType                            string           `json:"triggerType,omitempty"`
	RecordTriggerType                      string           `json:"recordTriggerType,omitempty"`
	Object                                 string           `json:"object,omitempty"`
	DoesRequireRecordChangedToMeetCriteria bool             `json:"doesRequireRecordChangedToMeetCriteria,omitempty"`
	Filters                                []FieldOperation `json:"filters,omitempty"`
	FilterLogic                            string           `json:"filterLogic,omitempty"`
	FilterFormula                          string           `json:"filterFormula,omitempty"`
	Schedule                               *Schedule        `json:"schedule,omitempty"`
}

// Kind implements Node.
func (*Start) Kind() Kind { return KindStart }

// Header implements Node. The start element is always named "Start".
func (*Start) Header() Base { return Base{Name: StartName} }

func (*Start) sealed() {}

// StartName is the name of the synthesized entry element.
const StartName = "Start"

// ScheduledPath is an asynchronous or time-offset path out of a record-triggered start.
type ScheduledPath struct {
	Name         string     `json:"name,omitempty"`
	Label        string     `json:"label,omitempty"`
	Connector    *Connector `json:"connector,omitempty"`
	OffsetNumber int        `json:"offsetNumber,omitempty"`
	OffsetUnit   string     `json:"offsetUnit,omitempty"`
	TimeSource   string     `json:"timeSource,omitempty"`
	RecordField  string     `json:"recordField,omitempty"`
	PathType     string     `json:"pathType,omitempty"`
}

// Schedule is the recurrence of a schedule-triggered flow.
type Schedule struct {
	StartDate string `json:"startDate,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// Assignment sets variables.
type Assignment struct {
	Base
	Links
	AssignmentItems []FieldOperation `json:"assignmentItems,omitempty"`
}

func (*Assignment) Kind() Kind { return KindAssignment }

// Decision routes to the first rule whose conditions hold, else the default connector.
type Decision struct {
	Base
	Rules                 []Rule     `json:"rules,omitempty"`
	DefaultConnector      *Connector `json:"defaultConnector,omitempty"`
	DefaultConnectorLabel string     `json:"defaultConnectorLabel,omitempty"`
}

func (*Decision) Kind() Kind { return KindDecision }

// Rule is one outcome of a decision.
type Rule struct {
	Name           string           `json:"name"`
	Label          string           `json:"label,omitempty"`
	ConditionLogic string           `json:"conditionLogic,omitempty"`
	Conditions     []FieldOperation `json:"conditions,omitempty"`
	Connector      *Connector       `json:"connector,omitempty"`
}

// Loop iterates a collection.
type Loop struct {
	Base
	CollectionReference   string     `json:"collectionReference,omitempty"`
	IterationOrder        string     `json:"iterationOrder,omitempty"`
	NextValueConnector    *Connector `json:"nextValueConnector,omitempty"`
	NoMoreValuesConnector *Connector `json:"noMoreValuesConnector,omitempty"`
}

func (*Loop) Kind() Kind { return KindLoop }

// Wait pauses the flow until one of its events fires.
type Wait struct {
	Base
	WaitEvents            []WaitEvent `json:"waitEvents,omitempty"`
	DefaultConnector      *Connector  `json:"defaultConnector,omitempty"`
	DefaultConnectorLabel string      `json:"defaultConnectorLabel,omitempty"`
	FaultConnector        *Connector  `json:"faultConnector,omitempty"`
}

func (*Wait) Kind() Kind { return KindWait }

// WaitEvent is one resumable event of a wait element.
type WaitEvent struct {
	Name       string           `json:"name"`
	Label      string           `json:"label,omitempty"`
	EventType  string           `json:"eventType,omitempty"`
	Conditions []FieldOperation `json:"conditions,omitempty"`
	Connector  *Connector       `json:"connector,omitempty"`
}

// Screen collects user input.
type Screen struct {
	Base
	Links
	Fields []ScreenField `json:"fields,omitempty"`
}

func (*Screen) Kind() Kind { return KindScreen }

// ScreenField is one component of a screen.
type ScreenField struct {
	Name                 string `json:"name,omitempty"`
	FieldText            string `json:"fieldText,omitempty"`
	DataType             string `json:"dataType,omitempty"`
	FieldType            string `json:"fieldType,omitempty"`
	ObjectFieldReference string `json:"objectFieldReference,omitempty"`
}

// RecordLookup queries records.
type RecordLookup struct {
	Base
	Links
	IOParameters
	Object                           string           `json:"object,omitempty"`
	Filters                          []FieldOperation `json:"filters,omitempty"`
	FilterLogic                      string           `json:"filterLogic,omitempty"`
	OutputReference                  string           `json:"outputReference,omitempty"`
	AssignNullValuesIfNoRecordsFound bool             `json:"assignNullValuesIfNoRecordsFound,omitempty"`
	GetFirstRecordOnly               bool             `json:"getFirstRecordOnly,omitempty"`
	StoreOutputAutomatically         bool             `json:"storeOutputAutomatically,omitempty"`
}

func (*RecordLookup) Kind() Kind { return KindRecordLookup }

// RecordCreate inserts records.
type RecordCreate struct {
	Base
	Links
	IOParameters
	Object                    string `json:"object,omitempty"`
	InputReference            string `json:"inputReference,omitempty"`
	AssignRecordIDToReference string `json:"assignRecordIdToReference,omitempty"`
	StoreOutputAutomatically  bool   `json:"storeOutputAutomatically,omitempty"`
}

func (*RecordCreate) Kind() Kind { return KindRecordCreate }

// RecordUpdate updates records.
type RecordUpdate struct {
	Base
	Links
	IOParameters
	Object         string           `json:"object,omitempty"`
	InputReference string           `json:"inputReference,omitempty"`
	Filters        []FieldOperation `json:"filters,omitempty"`
	FilterLogic    string           `json:"filterLogic,omitempty"`
}

func (*RecordUpdate) Kind() Kind { return KindRecordUpdate }

// RecordDelete deletes records.
type RecordDelete struct {
	Base
	Links
	Object         string           `json:"object,omitempty"`
	InputReference string           `json:"inputReference,omitempty"`
	Filters        []FieldOperation `json:"filters,omitempty"`
	FilterLogic    string           `json:"filterLogic,omitempty"`
}

func (*RecordDelete) Kind() Kind { return KindRecordDelete }

// RecordRollback rolls back pending record changes.
type RecordRollback struct {
	Base
	Links
}

func (*RecordRollback) Kind() Kind { return KindRecordRollback }

// ActionCall invokes a standard, apex or flow action.
type ActionCall struct {
	Base
	Links
	IOParameters
	ActionName               string `json:"actionName,omitempty"`
	ActionType               string `json:"actionType,omitempty"`
	StoreOutputAutomatically bool   `json:"storeOutputAutomatically,omitempty"`
}

func (*ActionCall) Kind() Kind { return KindActionCall }

// ApexPluginCall invokes a legacy Apex plugin.
type ApexPluginCall struct {
	Base
	Links
	IOParameters
	ApexClass string `json:"apexClass,omitempty"`
}

func (*ApexPluginCall) Kind() Kind { return KindApexPluginCall }

// Subflow invokes another flow.
type Subflow struct {
	Base
	Links
	IOParameters
	FlowName                 string `json:"flowName,omitempty"`
	StoreOutputAutomatically bool   `json:"storeOutputAutomatically,omitempty"`
}

func (*Subflow) Kind() Kind { return KindSubflow }

// CollectionProcessor sorts or filters a collection.
type CollectionProcessor struct {
	Base
	Links
	CollectionReference        string           `json:"collectionReference,omitempty"`
	CollectionProcessorType    string           `json:"collectionProcessorType,omitempty"`
	AssignNextValueToReference string           `json:"assignNextValueToReference,omitempty"`
	Formula                    string           `json:"formula,omitempty"`
	OutputSObjectType          string           `json:"outputSObjectType,omitempty"`
	Conditions                 []FieldOperation `json:"conditions,omitempty"`
}

func (*CollectionProcessor) Kind() Kind { return KindCollectionProcessor }

// Transform maps source data into a target shape.
type Transform struct {
	Base
	Links
	ObjectType      string           `json:"objectType,omitempty"`
	DataType        string           `json:"dataType,omitempty"`
	TransformValues []TransformValue `json:"transformValues,omitempty"`
}

func (*Transform) Kind() Kind { return KindTransform }

// Target returns the object type, falling back to the data type.
func (t *Transform) Target() string {
	if t.ObjectType != "" {
		return t.ObjectType
	}
	return t.DataType
}

// TransformValue groups the actions producing one output.
type TransformValue struct {
	TransformValueActions []TransformValueAction `json:"transformValueActions,omitempty"`
}

// TransformValueAction is one mapping step of a transform.
type TransformValueAction struct {
	TransformType      string `json:"transformType,omitempty"`
	Value              *Value `json:"value,omitempty"`
	OutputFieldAPIName string `json:"outputFieldApiName,omitempty"`
}

// DynamicChoiceSet builds screen choices from records or picklists.
type DynamicChoiceSet struct {
	Base
	Links
	CollectionReference string `json:"collectionReference,omitempty"`
	DataType            string `json:"dataType,omitempty"`
	Object              string `json:"object,omitempty"`
	PicklistObject      string `json:"picklistObject,omitempty"`
	PicklistField       string `json:"picklistField,omitempty"`
	DisplayField        string `json:"displayField,omitempty"`
}

func (*DynamicChoiceSet) Kind() Kind { return KindDynamicChoiceSet }

// Variable declares a flow variable.
type Variable struct {
	Base
	DataType     string `json:"dataType,omitempty"`
	ObjectType   string `json:"objectType,omitempty"`
	IsCollection bool   `json:"isCollection,omitempty"`
	IsInput      bool   `json:"isInput,omitempty"`
	IsOutput     bool   `json:"isOutput,omitempty"`
	Value        *Value `json:"value,omitempty"`
}

func (*Variable) Kind() Kind { return KindVariable }

// Constant declares a named literal.
type Constant struct {
	Base
	DataType string `json:"dataType,omitempty"`
	Value    *Value `json:"value,omitempty"`
}

func (*Constant) Kind() Kind { return KindConstant }

// TextTemplate declares a merge-field text block.
type TextTemplate struct {
	Base
	Text                string `json:"text,omitempty"`
	IsViewedAsPlainText bool   `json:"isViewedAsPlainText,omitempty"`
}

func (*TextTemplate) Kind() Kind { return KindTextTemplate }

// Formula declares a computed value.
type Formula struct {
	Base
	DataType   string `json:"dataType,omitempty"`
	Expression string `json:"expression,omitempty"`
}

func (*Formula) Kind() Kind { return KindFormula }

// Choice declares a static screen choice.
type Choice struct {
	Base
	ChoiceText string `json:"choiceText,omitempty"`
	DataType   string `json:"dataType,omitempty"`
	Value      *Value `json:"value,omitempty"`
}

func (*Choice) Kind() Kind { return KindChoice }
