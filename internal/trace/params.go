package trace

import (
	"fmt"
	"strings"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/internal/scheduler"
	"github.com/rendis/flowlens/pkg/schema"
)

// Separator joins parameter segments.
const Separator = " / "

// segments accumulates the parts of one parameter summary.
type segments []string

func (s *segments) add(format string, args ...any) {
	*s = append(*s, fmt.Sprintf(format, args...))
}

// kv adds "key = value", skipping empty values.
func (s *segments) kv(key, value string) {
	if value != "" {
		s.add("%s = %s", key, value)
	}
}

// flag adds "key = true|false" unconditionally.
func (s *segments) flag(key string, v bool) {
	s.add("%s = %t", key, v)
}

func (s *segments) header(title string, n int) {
	if n > 0 {
		*s = append(*s, title+":")
	}
}

func (s *segments) ops(items []schema.FieldOperation) {
	for _, f := range items {
		s.add("%s %s %s", f.Left(), Operator(f.Operator), f.Right().String())
	}
}

func (s *segments) filters(items []schema.FieldOperation) {
	s.header("Filters", len(items))
	s.ops(items)
}

func (s *segments) storeOutput(v bool) {
	if v {
		s.flag("Store output?", v)
	}
}

func (s *segments) io(p schema.IOParameters) {
	s.header("Input assignments", len(p.InputAssignments))
	for _, f := range p.InputAssignments {
		s.add("%s = %s", f.Left(), f.Right().String())
	}
	s.header("Output assignments", len(p.OutputAssignments))
	for _, f := range p.OutputAssignments {
		s.add("%s = %s", f.Left(), outputTarget(f))
	}
	s.header("Input parameters", len(p.InputParameters))
	for _, in := range p.InputParameters {
		s.add("%s = %s", in.Name, in.Value.String())
	}
	s.header("Output parameters", len(p.OutputParameters))
	for _, out := range p.OutputParameters {
		value := out.Value.String()
		if out.Value == nil && out.AssignToReference != "" {
			value = out.AssignToReference
		}
		s.add("%s = %s", out.Name, value)
	}
}

func (s segments) String() string {
	return strings.Join(s, Separator)
}

// outputTarget renders where an output assignment stores its field.
func outputTarget(f schema.FieldOperation) string {
	if f.Right() == nil && f.Field != "" && f.AssignToReference != "" {
		return f.AssignToReference
	}
	return f.Right().String()
}

// Operator renders a comparison or assignment operator. EqualTo and Assign
// become "=", a "Not" prefix becomes "NOT ", and a missing operator means "=".
func Operator(op string) string {
	switch op {
	case "", "EqualTo", "Assign":
		return "="
	case "NotEqualTo":
		return "NOT ="
	}
	if rest, ok := strings.CutPrefix(op, "Not"); ok {
		return "NOT " + rest
	}
	return op
}

// Formatter renders the kind-specific payload of an element into a single
// delimited parameter summary.
type Formatter struct {
	schedules *scheduler.Describer
}

// NewFormatter creates a Formatter. A nil describer disables schedule plans.
func NewFormatter(schedules *scheduler.Describer) *Formatter {
	return &Formatter{schedules: schedules}
}

// Parameters renders the parameter summary of el. Decisions and waits render
// empty: their conditions appear on the branch rows.
func (f *Formatter) Parameters(el *engine.Element) string {
	var s segments

	switch n := el.Payload.(type) {
	case *schema.Start:
		s.kv("Type", strings.TrimSpace(n.TriggerType+" "+n.RecordTriggerType))
		s.kv("Object", n.Object)
		if n.Object != "" {
			s.flag("Requires Record Changed To Meet Criteria", n.DoesRequireRecordChangedToMeetCriteria)
		}
		s.filters(n.Filters)
		s.kv("Filter formula", n.FilterFormula)
		if n.Schedule != nil {
			s.kv("Schedule", strings.TrimSpace(strings.Join([]string{n.Schedule.StartDate, n.Schedule.StartTime, n.Schedule.Frequency}, " ")))
			if f.schedules != nil {
				if plan, err := f.schedules.Describe(n.Schedule); err == nil && len(plan.Runs) > 0 {
					s.kv("Runs", plan.String())
				}
			}
		}

	case *schema.Assignment:
		s.ops(n.AssignmentItems)

	case *schema.Decision, *schema.Wait, *schema.RecordRollback:

	case *schema.Loop:
		s.kv("Collection", n.CollectionReference)
		s.kv("Order", n.IterationOrder)

	case *schema.Screen:
		for _, fld := range n.Fields {
			text := strings.Join(strings.Fields(strings.Join(
				[]string{fld.FieldText, fld.DataType, fld.FieldType, fld.ObjectFieldReference}, " ")), " ")
			if text != "" {
				s = append(s, text)
			}
		}

	case *schema.RecordLookup:
		s.kv("Object", n.Object)
		s.flag("Assign null if no records?", n.AssignNullValuesIfNoRecordsFound)
		s.flag("First record only?", n.GetFirstRecordOnly)
		s.storeOutput(n.StoreOutputAutomatically)
		s.kv("Output reference", n.OutputReference)
		s.filters(n.Filters)
		s.io(n.IOParameters)

	case *schema.RecordCreate:
		s.kv("Object", n.Object)
		s.kv("Reference", n.InputReference)
		s.kv("Assign id?", n.AssignRecordIDToReference)
		s.storeOutput(n.StoreOutputAutomatically)
		s.io(n.IOParameters)

	case *schema.RecordUpdate:
		s.kv("Reference", n.InputReference)
		s.kv("Object", n.Object)
		s.io(n.IOParameters)
		s.filters(n.Filters)

	case *schema.RecordDelete:
		s.kv("Reference", n.InputReference)
		s.kv("Object", n.Object)
		s.filters(n.Filters)

	case *schema.ActionCall:
		s.kv("Type", n.ActionType)
		s.kv("Action", n.ActionName)
		s.storeOutput(n.StoreOutputAutomatically)
		s.io(n.IOParameters)

	case *schema.ApexPluginCall:
		s.kv("Apex class", n.ApexClass)
		s.io(n.IOParameters)

	case *schema.Subflow:
		s.kv("Flow", n.FlowName)
		s.storeOutput(n.StoreOutputAutomatically)
		s.io(n.IOParameters)

	case *schema.CollectionProcessor:
		s.kv("Collection", n.CollectionReference)
		s.kv("Processing type", n.CollectionProcessorType)
		s.kv("Assign next value to", n.AssignNextValueToReference)
		s.kv("Filter formula", n.Formula)
		s.kv("Output object", n.OutputSObjectType)
		s.ops(n.Conditions)

	case *schema.Transform:
		s.kv("Target", n.Target())
		for _, tv := range n.TransformValues {
			for _, a := range tv.TransformValueActions {
				value := a.Value.String()
				if a.Value == nil {
					value = "formula"
				}
				desc := a.TransformType + ": " + value
				if a.OutputFieldAPIName != "" {
					desc += " to " + a.OutputFieldAPIName
				}
				s = append(s, desc)
			}
		}

	case *schema.DynamicChoiceSet:
		s.kv("Collection", n.CollectionReference)
		s.kv("Type", n.DataType)
		s.kv("Object", n.Object)
		s.kv("Picklist object", n.PicklistObject)
		s.kv("Picklist field", n.PicklistField)
		s.kv("Display field", n.DisplayField)

	case *schema.Variable:
		typ := n.DataType
		if n.ObjectType != "" {
			typ = strings.TrimSpace(typ + " " + n.ObjectType)
		}
		if n.IsCollection {
			typ = "Collection of " + typ
		}
		s.kv("Type", typ)
		s.flag("Input", n.IsInput)
		s.flag("Output", n.IsOutput)
		s.kv("Value", n.Value.String())

	case *schema.Constant:
		s.kv("Type", n.DataType)
		s.kv("Value", n.Value.String())

	case *schema.TextTemplate:
		s.kv("Text", n.Text)
		s.flag("Plain Text", n.IsViewedAsPlainText)

	case *schema.Formula:
		s.kv("Type", n.DataType)
		s.kv("Expression", n.Expression)

	case *schema.Choice:
		s.kv("Text", n.ChoiceText)
		s.kv("Type", n.DataType)
		s.kv("Value", n.Value.String())
	}

	return s.String()
}
