package compiler

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"gobasic/pkg/asm"
	"gobasic/pkg/classfile"
)

// Instructions lowers the plan to symbolic instructions for a class
// named className.
func (p *Plan) Instructions(className string) ([]asm.Instr, error) {
	out := make([]asm.Instr, 0, len(p.Prologue)+len(p.Body))
	for _, list := range [][]Intent{p.Prologue, p.Body} {
		for _, in := range list {
			lowered, err := p.lower(in, className)
			if err != nil {
				return nil, err
			}
			out = append(out, lowered...)
		}
	}
	return out, nil
}

func (p *Plan) lower(in Intent, className string) ([]asm.Instr, error) {
	switch in.Kind {
	case OpIntent:
		return []asm.Instr{asm.Insn(in.Op)}, nil
	case LocalIntent:
		return []asm.Instr{asm.Var(in.Op, in.Slot)}, nil
	case ConstIntent:
		switch v := in.Value.(type) {
		case float32:
			return []asm.Instr{asm.Float(v)}, nil
		case int32:
			return []asm.Instr{asm.Int(v)}, nil
		case string:
			return []asm.Instr{asm.String(v)}, nil
		}
		return nil, &CodeGenError{Msg: fmt.Sprintf("internal error: constant of type %T", in.Value)}
	case JumpIntent:
		return []asm.Instr{asm.Jump(in.Op, in.Target)}, nil
	case LabelIntent:
		return []asm.Instr{asm.Mark(in.Target)}, nil
	case LineIntent:
		if l, ok := p.Syms.PlacedTarget(in.Line); ok {
			return []asm.Instr{asm.Mark(l)}, nil
		}
		return nil, nil
	case RuntimeCall:
		return []asm.Instr{asm.Invoke(asm.INVOKEVIRTUAL, className, in.Name, in.Desc)}, nil
	case JDKCall:
		return []asm.Instr{asm.Invoke(in.Op, in.Owner, in.Name, in.Desc)}, nil
	case RuntimeField:
		return []asm.Instr{asm.Field(in.Op, className, in.Name, in.Desc)}, nil
	case NewArrayIntent:
		return []asm.Instr{asm.MultiArray(in.Desc, in.Dims)}, nil
	case NewObjectsIntent:
		return []asm.Instr{asm.Type(asm.ANEWARRAY, in.Owner)}, nil
	case TableSwitchIntent:
		return []asm.Instr{asm.TableSwitch(in.Key, in.Target, in.Targets...)}, nil
	case GosubIntent:
		return []asm.Instr{asm.Gosub(in.Key, in.Target, in.Return)}, nil
	case ReturnIntent:
		return []asm.Instr{asm.Dispatch(in.Target)}, nil
	case RestoreIntent:
		offset, err := p.Syms.DataOffset(in.Line)
		if err != nil {
			return nil, &CodeGenError{Label: in.At, Msg: "RESTORE: " + err.Error()}
		}
		return []asm.Instr{
			asm.Var(asm.ALOAD, 0),
			asm.Int(int32(offset)),
			asm.Field(asm.PUTFIELD, className, "nextDataPtr", "I"),
		}, nil
	}
	return nil, &CodeGenError{Msg: fmt.Sprintf("internal error: unhandled intent %s", in.Kind)}
}

// Emit is the second pass: it assembles the run method and patches it
// into template, renamed to className.
func (p *Plan) Emit(className string, template []byte) ([]byte, error) {
	cf, err := classfile.Parse(template)
	if err != nil {
		return nil, &CodeGenError{Msg: fmt.Sprintf("reading template: %v", err)}
	}
	if _, err := cf.FindMethod("run", "()V"); err != nil {
		return nil, &CodeGenError{Msg: fmt.Sprintf("template: %v", err)}
	}
	if err := cf.Rename(className); err != nil {
		return nil, &CodeGenError{Msg: err.Error()}
	}

	code, err := p.Instructions(className)
	if err != nil {
		return nil, err
	}
	a := asm.New(cf.Pool, className, cf.Major >= classfile.VersionStackMaps)
	body, err := a.Assemble(code)
	if err != nil {
		var me *asm.MergeError
		if errors.As(err, &me) {
			return nil, &CodeGenError{
				Label: p.Syms.LabelLine(me.Label),
				Msg:   fmt.Sprintf("control reaches this line with different GOSUB nesting (%s vs %s)", me.Have, me.Got),
			}
		}
		var ue *asm.UnmatchedReturnError
		if errors.As(err, &ue) {
			return nil, &CodeGenError{Label: p.Syms.LabelLine(ue.Default), Msg: "RETURN without GOSUB"}
		}
		return nil, &CodeGenError{Msg: fmt.Sprintf("assembling run(): %v", err)}
	}
	if err := cf.SetMethodCode("run", "()V", body); err != nil {
		return nil, &CodeGenError{Msg: err.Error()}
	}
	if cf.Pool.Overflowed() {
		return nil, &CodeGenError{Msg: "constant pool overflow"}
	}
	out, err := cf.Bytes()
	if err != nil {
		return nil, &CodeGenError{Msg: err.Error()}
	}
	log.Debug("Emitted class", "name", className, "major", cf.Major, "code", len(body.Code), "bytes", len(out))
	return out, nil
}
