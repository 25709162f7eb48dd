package aot

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/luaot/pkg/bytecode"
)

func TestBranchTargets(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"jump 5+1+3", JumpTarget(5, 3), 9},
		{"jump backward", JumpTarget(10, -4), 7},
		{"loop back 20+1-6", LoopBackTarget(20, 6), 15},
		{"loop skip 2+1+4+1", LoopSkipTarget(2, 4), 8},
		{"forward 2+1+4", ForwardTarget(2, 4), 7},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestResolveLabels(t *testing.T) {
	p := &bytecode.Prototype{Code: []bytecode.Instruction{
		bytecode.CreateABCk(bytecode.OpEqI, 0, 5+bytecode.OffsetSC, 0, 0), // 0
		bytecode.CreateSJ(bytecode.OpJmp, 1),                             // 1 -> 3
		bytecode.CreateABCk(bytecode.OpLoadTrue, 1, 0, 0, 0),             // 2
		bytecode.CreateABCk(bytecode.OpReturn0, 0, 1, 1, 0),              // 3
	}}

	l, err := resolveLabels("f", p)
	if err != nil {
		t.Fatalf("resolveLabels failed: %v", err)
	}

	if target, ok := l.NextJump(0); !ok || target != "label_03" {
		t.Errorf("NextJump(0) = %q, %v, want label_03", target, ok)
	}
	if _, ok := l.NextJump(1); ok {
		t.Error("NextJump(1) should not exist: pc 2 is not a JMP")
	}
	if target, ok := l.Skip1(0); !ok || target != "label_02" {
		t.Errorf("Skip1(0) = %q, %v, want label_02", target, ok)
	}
	if _, ok := l.Skip1(2); ok {
		t.Error("Skip1(2) should not exist past the end of the function")
	}
}

func TestResolveLabelsErrors(t *testing.T) {
	ret := bytecode.CreateABCk(bytecode.OpReturn0, 0, 1, 1, 0)
	tests := []struct {
		name   string
		code   []bytecode.Instruction
		pc     int
		reason string
	}{
		{
			name: "jump past end",
			code: []bytecode.Instruction{bytecode.CreateSJ(bytecode.OpJmp, 5), ret},
			pc:   0,
		},
		{
			name: "jump before start",
			code: []bytecode.Instruction{ret, bytecode.CreateSJ(bytecode.OpJmp, -3)},
			pc:   1,
		},
		{
			name: "forprep skip past end",
			code: []bytecode.Instruction{bytecode.CreateABx(bytecode.OpForPrep, 0, 1), ret},
			pc:   0,
		},
		{
			name: "forloop before start",
			code: []bytecode.Instruction{bytecode.CreateABx(bytecode.OpForLoop, 0, 3), ret},
			pc:   0,
		},
		{
			name:   "test without jump",
			code:   []bytecode.Instruction{bytecode.CreateABCk(bytecode.OpTest, 0, 0, 0, 0), ret, ret},
			pc:     0,
			reason: "not followed by JMP",
		},
		{
			name: "lfalseskip at end",
			code: []bytecode.Instruction{ret, bytecode.CreateABCk(bytecode.OpLFalseSkip, 0, 0, 0, 0)},
			pc:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveLabels("magic_implementation_03", &bytecode.Prototype{Code: tt.code})
			var jumpErr *JumpError
			if !errors.As(err, &jumpErr) {
				t.Fatalf("error = %v, want *JumpError", err)
			}
			if jumpErr.PC != tt.pc {
				t.Errorf("PC = %d, want %d", jumpErr.PC, tt.pc)
			}
			if jumpErr.Function != "magic_implementation_03" {
				t.Errorf("Function = %q", jumpErr.Function)
			}
			if tt.reason != "" && !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q should mention %q", err.Error(), tt.reason)
			}
		})
	}
}

func TestLabelsArePerFunction(t *testing.T) {
	long := &bytecode.Prototype{Code: make([]bytecode.Instruction, 10)}
	for i := range long.Code {
		long.Code[i] = bytecode.CreateABCk(bytecode.OpReturn0, 0, 1, 1, 0)
	}
	short := &bytecode.Prototype{Code: []bytecode.Instruction{
		bytecode.CreateSJ(bytecode.OpJmp, 6),
		bytecode.CreateABCk(bytecode.OpReturn0, 0, 1, 1, 0),
	}}

	if _, err := resolveLabels("long", long); err != nil {
		t.Fatalf("resolveLabels(long) failed: %v", err)
	}
	// A target that exists only in another function is still out of range.
	if _, err := resolveLabels("short", short); err == nil {
		t.Error("expected a JumpError for a target beyond the function")
	}
}
