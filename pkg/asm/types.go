package asm

import (
	"fmt"
	"strings"
)

// Kind is the verification category of a value.
type Kind uint8

const (
	KindTop Kind = iota
	KindInt
	KindFloat
	KindDouble
	KindNull
	KindObject
)

// VType is a verification type: a kind plus, for objects, the internal
// class name or array descriptor.
type VType struct {
	Kind  Kind
	Class string
}

var (
	TopType    = VType{Kind: KindTop}
	IntType    = VType{Kind: KindInt}
	FloatType  = VType{Kind: KindFloat}
	DoubleType = VType{Kind: KindDouble}
	NullType   = VType{Kind: KindNull}
)

func Object(class string) VType { return VType{Kind: KindObject, Class: class} }

// Size is the number of stack or local slots the value occupies.
func (t VType) Size() int {
	if t.Kind == KindDouble {
		return 2
	}
	return 1
}

func (t VType) IsRef() bool { return t.Kind == KindObject || t.Kind == KindNull }

func (t VType) String() string {
	switch t.Kind {
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindNull:
		return "null"
	}
	return t.Class
}

// Element returns the component type of an array type.
func (t VType) Element() (VType, error) {
	if t.Kind != KindObject || !strings.HasPrefix(t.Class, "[") {
		return TopType, fmt.Errorf("%s is not an array", t)
	}
	return FieldType(t.Class[1:])
}

// FieldType converts a field descriptor to its verification type.
func FieldType(desc string) (VType, error) {
	t, rest, err := nextType(desc)
	if err != nil {
		return TopType, err
	}
	if rest != "" {
		return TopType, fmt.Errorf("trailing %q in descriptor %q", rest, desc)
	}
	return t, nil
}

func nextType(desc string) (VType, string, error) {
	if desc == "" {
		return TopType, "", fmt.Errorf("empty descriptor")
	}
	switch desc[0] {
	case 'I', 'Z', 'B', 'C', 'S':
		return IntType, desc[1:], nil
	case 'F':
		return FloatType, desc[1:], nil
	case 'D':
		return DoubleType, desc[1:], nil
	case 'L':
		end := strings.IndexByte(desc, ';')
		if end < 2 {
			return TopType, "", fmt.Errorf("bad class descriptor %q", desc)
		}
		return Object(desc[1:end]), desc[end+1:], nil
	case '[':
		i := 0
		for i < len(desc) && desc[i] == '[' {
			i++
		}
		_, rest, err := nextType(desc[i:])
		if err != nil {
			return TopType, "", err
		}
		return Object(desc[:len(desc)-len(rest)]), rest, nil
	}
	return TopType, "", fmt.Errorf("unsupported descriptor %q", desc)
}

// MethodType splits a method descriptor into argument types and the
// return type; void methods return ok == false.
func MethodType(desc string) (args []VType, ret VType, ok bool, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, TopType, false, fmt.Errorf("bad method descriptor %q", desc)
	}
	rest := desc[1:]
	for !strings.HasPrefix(rest, ")") {
		var t VType
		if t, rest, err = nextType(rest); err != nil {
			return nil, TopType, false, fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		args = append(args, t)
	}
	rest = rest[1:]
	if rest == "V" {
		return args, TopType, false, nil
	}
	ret, err = FieldType(rest)
	if err != nil {
		return nil, TopType, false, fmt.Errorf("method descriptor %q: %w", desc, err)
	}
	return args, ret, true, nil
}

// ArrayOf returns the array type whose elements are class (an internal
// name or an array descriptor).
func ArrayOf(class string) VType {
	if strings.HasPrefix(class, "[") {
		return Object("[" + class)
	}
	return Object("[L" + class + ";")
}
