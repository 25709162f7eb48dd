package aot

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/luaot/pkg/bytecode"
)

// Policy selects what happens when an instruction has no C translation.
type Policy int

const (
	// PolicyError fails generation and lists every unsupported instruction.
	PolicyError Policy = iota
	// PolicyTrap emits a call that aborts when the instruction executes.
	PolicyTrap
	// PolicyFallback hands the instruction back to the interpreter.
	PolicyFallback
)

var policyNames = []string{"error", "trap", "fallback"}

func (p Policy) String() string {
	if int(p) >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses a policy name as used in flags and luaot.toml.
func ParsePolicy(s string) (Policy, error) {
	for i, name := range policyNames {
		if s == name {
			return Policy(i), nil
		}
	}
	return PolicyError, fmt.Errorf("unknown unsupported-opcode policy %q (want %s)", s, strings.Join(policyNames, ", "))
}

// UnsupportedOpcodeError reports an instruction without a C translation.
type UnsupportedOpcodeError struct {
	Function string // generated function name
	PC       int
	Opcode   bytecode.Opcode
}

func (e *UnsupportedOpcodeError) Error() string {
	return fmt.Sprintf("%s: instruction %d: unsupported opcode %s", e.Function, e.PC+1, e.Opcode)
}

// JumpError reports a branch whose target cannot be expressed as a label
// of the enclosing function.
type JumpError struct {
	Function string
	PC       int
	Opcode   bytecode.Opcode
	Target   int
	Reason   string
}

func (e *JumpError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: instruction %d (%s): %s", e.Function, e.PC+1, e.Opcode, e.Reason)
	}
	return fmt.Sprintf("%s: instruction %d (%s): jump target %d out of range", e.Function, e.PC+1, e.Opcode, e.Target)
}

// findingsFormat renders aggregated findings one per line.
func findingsFormat(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  " + err.Error()
	}
	return fmt.Sprintf("%d unsupported instructions:\n%s", len(errs), strings.Join(lines, "\n"))
}

func newFindings() *multierror.Error {
	return &multierror.Error{ErrorFormat: findingsFormat}
}
