// Package classfile reads, edits and writes JVM class files.
//
// It covers what the BASIC compiler needs from the format: parsing a
// template class, renaming it, swapping the body of one method and
// serializing the result. Attributes the package does not interpret are
// carried through untouched.
package classfile

import "fmt"

const Magic uint32 = 0xCAFEBABE

// Constant pool tags.
const (
	TagUtf8               uint8 = 1
	TagInteger            uint8 = 3
	TagFloat              uint8 = 4
	TagLong               uint8 = 5
	TagDouble             uint8 = 6
	TagClass              uint8 = 7
	TagString             uint8 = 8
	TagFieldref           uint8 = 9
	TagMethodref          uint8 = 10
	TagInterfaceMethodref uint8 = 11
	TagNameAndType        uint8 = 12
	TagMethodHandle       uint8 = 15
	TagMethodType         uint8 = 16
	TagDynamic            uint8 = 17
	TagInvokeDynamic      uint8 = 18
	TagModule             uint8 = 19
	TagPackage            uint8 = 20
)

// Access flags used by the built-in template.
const (
	AccPublic uint16 = 0x0001
	AccStatic uint16 = 0x0008
	AccSuper  uint16 = 0x0020
)

// VersionStackMaps is the first major version whose verifier requires a
// StackMapTable on methods with branches.
const VersionStackMaps uint16 = 50

// Attribute is a raw attribute: the index of its name and its payload.
type Attribute struct {
	NameIndex uint16
	Data      []byte
}

// Member is a field or a method.
type Member struct {
	Access     uint16
	NameIndex  uint16
	DescIndex  uint16
	Attributes []Attribute
}

// ClassFile is a parsed class.
type ClassFile struct {
	Minor      uint16
	Major      uint16
	Pool       *Pool
	Access     uint16
	ThisClass  uint16
	SuperClass uint16
	Interfaces []uint16
	Fields     []Member
	Methods    []Member
	Attributes []Attribute
}

// Name returns the internal name of the class, e.g. "BasProgram".
func (cf *ClassFile) Name() (string, error) {
	return cf.Pool.ClassName(cf.ThisClass)
}

// SuperName returns the internal name of the superclass.
func (cf *ClassFile) SuperName() (string, error) {
	return cf.Pool.ClassName(cf.SuperClass)
}

// FindMethod returns the method with the given name and descriptor.
func (cf *ClassFile) FindMethod(name, desc string) (*Member, error) {
	for i := range cf.Methods {
		m := &cf.Methods[i]
		n, err := cf.Pool.Utf8(m.NameIndex)
		if err != nil {
			return nil, err
		}
		d, err := cf.Pool.Utf8(m.DescIndex)
		if err != nil {
			return nil, err
		}
		if n == name && d == desc {
			return m, nil
		}
	}
	return nil, fmt.Errorf("method %s%s not found", name, desc)
}

// FindAttribute returns the first attribute of m with the given name.
func (cf *ClassFile) FindAttribute(attrs []Attribute, name string) (int, bool) {
	for i, a := range attrs {
		if n, err := cf.Pool.Utf8(a.NameIndex); err == nil && n == name {
			return i, true
		}
	}
	return -1, false
}
