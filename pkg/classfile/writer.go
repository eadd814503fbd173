package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

type writer struct {
	buf []byte
}

func (w *writer) u1(v uint8)  { w.buf = append(w.buf, v) }
func (w *writer) u2(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u4(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

// Bytes serializes the class.
func (cf *ClassFile) Bytes() ([]byte, error) {
	if cf.Pool.Overflowed() {
		return nil, fmt.Errorf("constant pool has %d entries, limit is %d", cf.Pool.Count(), math.MaxUint16)
	}
	w := &writer{buf: make([]byte, 0, 1024)}
	w.u4(Magic)
	w.u2(cf.Minor)
	w.u2(cf.Major)
	if err := writePool(w, cf.Pool); err != nil {
		return nil, err
	}
	w.u2(cf.Access)
	w.u2(cf.ThisClass)
	w.u2(cf.SuperClass)
	w.u2(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		w.u2(i)
	}
	for _, members := range [][]Member{cf.Fields, cf.Methods} {
		w.u2(uint16(len(members)))
		for _, m := range members {
			w.u2(m.Access)
			w.u2(m.NameIndex)
			w.u2(m.DescIndex)
			if err := writeAttributes(w, m.Attributes); err != nil {
				return nil, err
			}
		}
	}
	if err := writeAttributes(w, cf.Attributes); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func writePool(w *writer, p *Pool) error {
	w.u2(uint16(p.Count()))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.Tag == 0 {
			// second half of a Long/Double
			continue
		}
		w.u1(c.Tag)
		switch c.Tag {
		case TagUtf8:
			b := encodeModifiedUTF8(c.Utf8)
			if len(b) > math.MaxUint16 {
				return fmt.Errorf("constant %d: string too long (%d bytes)", i, len(b))
			}
			w.u2(uint16(len(b)))
			w.buf = append(w.buf, b...)
		case TagInteger:
			w.u4(uint32(c.Int))
		case TagFloat:
			w.u4(math.Float32bits(c.Float))
		case TagLong:
			w.u4(uint32(uint64(c.Long) >> 32))
			w.u4(uint32(c.Long))
		case TagDouble:
			bits := math.Float64bits(c.Double)
			w.u4(uint32(bits >> 32))
			w.u4(uint32(bits))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u2(c.Index1)
		case TagMethodHandle:
			w.u1(c.Kind)
			w.u2(c.Index1)
		default:
			w.u2(c.Index1)
			w.u2(c.Index2)
		}
	}
	return nil
}

func writeAttributes(w *writer, attrs []Attribute) error {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		if uint64(len(a.Data)) > math.MaxUint32 {
			return fmt.Errorf("attribute too large")
		}
		w.u2(a.NameIndex)
		w.u4(uint32(len(a.Data)))
		w.buf = append(w.buf, a.Data...)
	}
	return nil
}
