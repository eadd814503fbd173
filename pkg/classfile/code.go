package classfile

import (
	"fmt"
	"math"
)

// ExceptionEntry is one row of a Code attribute's exception table.
type ExceptionEntry struct {
	StartPC, EndPC, HandlerPC, CatchType uint16
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Code       []byte
	Exceptions []ExceptionEntry
	Attributes []Attribute
}

// ParseCode decodes the payload of a Code attribute.
func ParseCode(data []byte) (*Code, error) {
	r := &reader{buf: data}
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Code = r.bytes(int(r.u4()))
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		c.Exceptions = append(c.Exceptions, ExceptionEntry{r.u2(), r.u2(), r.u2(), r.u2()})
	}
	c.Attributes = readAttributes(r)
	if r.err != nil {
		return nil, fmt.Errorf("code attribute: %w", r.err)
	}
	return c, nil
}

// Bytes encodes c as a Code attribute payload.
func (c *Code) Bytes() ([]byte, error) {
	if len(c.Code) == 0 || len(c.Code) > math.MaxUint16 {
		return nil, fmt.Errorf("method body of %d bytes is outside 1..%d", len(c.Code), math.MaxUint16)
	}
	w := &writer{}
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Code)))
	w.buf = append(w.buf, c.Code...)
	w.u2(uint16(len(c.Exceptions)))
	for _, e := range c.Exceptions {
		w.u2(e.StartPC)
		w.u2(e.EndPC)
		w.u2(e.HandlerPC)
		w.u2(e.CatchType)
	}
	if err := writeAttributes(w, c.Attributes); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// MethodCode returns the decoded Code attribute of the named method.
func (cf *ClassFile) MethodCode(name, desc string) (*Code, error) {
	m, err := cf.FindMethod(name, desc)
	if err != nil {
		return nil, err
	}
	i, ok := cf.FindAttribute(m.Attributes, "Code")
	if !ok {
		return nil, fmt.Errorf("method %s%s has no Code attribute", name, desc)
	}
	return ParseCode(m.Attributes[i].Data)
}
