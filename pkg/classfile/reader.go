package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader is a big-endian cursor that remembers the first failure, so the
// parse functions can read a whole structure and check err once.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("unexpected end of class data at offset %d (need %d bytes)", r.pos, n)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u1() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u2() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u4() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{buf: data}
	if m := r.u4(); r.err == nil && m != Magic {
		return nil, fmt.Errorf("bad magic 0x%08X", m)
	}
	cf := &ClassFile{Pool: NewPool()}
	cf.Minor = r.u2()
	cf.Major = r.u2()
	if err := readPool(r, cf.Pool); err != nil {
		return nil, err
	}
	cf.Access = r.u2()
	cf.ThisClass = r.u2()
	cf.SuperClass = r.u2()
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.u2())
	}
	cf.Fields = readMembers(r)
	cf.Methods = readMembers(r)
	cf.Attributes = readAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after class data", len(data)-r.pos)
	}
	if _, err := cf.Name(); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	return cf, nil
}

func readPool(r *reader, p *Pool) error {
	count := int(r.u2())
	for i := 1; i < count && r.err == nil; i++ {
		c := Constant{Tag: r.u1()}
		switch c.Tag {
		case TagUtf8:
			s, err := decodeModifiedUTF8(r.take(int(r.u2())))
			if err != nil {
				return fmt.Errorf("constant %d: %w", i, err)
			}
			c.Utf8 = s
		case TagInteger:
			c.Int = int32(r.u4())
		case TagFloat:
			c.Float = math.Float32frombits(r.u4())
		case TagLong:
			c.Long = int64(uint64(r.u4())<<32 | uint64(r.u4()))
			i++
		case TagDouble:
			c.Double = math.Float64frombits(uint64(r.u4())<<32 | uint64(r.u4()))
			i++
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.Index1 = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.Index1 = r.u2()
			c.Index2 = r.u2()
		case TagMethodHandle:
			c.Kind = r.u1()
			c.Index1 = r.u2()
		default:
			if r.err == nil {
				return fmt.Errorf("constant %d: unknown tag %d", i, c.Tag)
			}
		}
		p.append(c)
	}
	return r.err
}

func readMembers(r *reader) []Member {
	n := int(r.u2())
	members := make([]Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := Member{Access: r.u2(), NameIndex: r.u2(), DescIndex: r.u2()}
		m.Attributes = readAttributes(r)
		members = append(members, m)
	}
	return members
}

func readAttributes(r *reader) []Attribute {
	n := int(r.u2())
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u2()
		length := r.u4()
		attrs = append(attrs, Attribute{NameIndex: name, Data: r.bytes(int(length))})
	}
	return attrs
}
