package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voltlab/netir/internal/ir"
)

// Validation diagnostic codes (V100-V199 errors, V200-V299 warnings).
const (
	CodeDanglingRef     = "V101" // instance references a deleted or unknown definition
	CodeUnconnectedPort = "V102" // connection count does not match child port count
	CodeWidthMismatch   = "V103" // connected slice width differs from declared port width
	CodeCycle           = "V104" // instantiation relation contains a cycle
	CodeZeroWidth       = "V105" // signal width below 1
	CodeInvalidRange    = "V106" // slice bit range empty or out of signal bounds
	CodeUnknownParam    = "V107" // override names a parameter the child never declared

	CodeUnusedSignal = "V201" // signal is neither a port nor connected
	CodeNoTopCell    = "V202" // library has no top cell set
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalJSON emits the severity name, not the enum ordinal.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Diagnostic reports one invariant violation, naming the offending ids so a
// generator author can locate the construction site.
type Diagnostic struct {
	Code     string        `json:"code"`
	Severity Severity      `json:"severity"`
	Cell     ir.CellID     `json:"cell"`
	Instance ir.InstanceID `json:"instance,omitempty"`
	Signal   ir.SignalID   `json:"signal,omitempty"`
	Message  string        `json:"message"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	return fmt.Sprintf("[%s] %s: cell=%d: %s", d.Code, d.Severity, d.Cell, d.Message)
}

// Issues is the result of a validation run: every violation found, in a
// deterministic order. Validation is exhaustive; it never stops at the
// first error.
type Issues struct {
	Diagnostics []Diagnostic
}

// NumErrors returns the number of error-severity diagnostics.
func (i Issues) NumErrors() int {
	n := 0
	for _, d := range i.Diagnostics {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// NumWarnings returns the number of warning-severity diagnostics.
func (i Issues) NumWarnings() int {
	return len(i.Diagnostics) - i.NumErrors()
}

// OK reports whether the library passed validation with no errors.
// Warnings do not fail a library.
func (i Issues) OK() bool { return i.NumErrors() == 0 }

// String renders the diagnostics one per line.
func (i Issues) String() string {
	if len(i.Diagnostics) == 0 {
		return "no issues"
	}
	var sb strings.Builder
	for _, d := range i.Diagnostics {
		sb.WriteString(d.Error())
		sb.WriteByte('\n')
	}
	return sb.String()
}
