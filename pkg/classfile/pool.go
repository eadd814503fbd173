package classfile

import (
	"fmt"
	"math"
)

// Constant is one constant pool entry. Which fields are meaningful depends
// on Tag; Index1 and Index2 hold the entry's references in declaration
// order (class_index/name_and_type_index, name_index/descriptor_index, ...).
type Constant struct {
	Tag    uint8
	Utf8   string
	Int    int32
	Float  float32
	Long   int64
	Double float64
	Kind   uint8 // MethodHandle reference_kind
	Index1 uint16
	Index2 uint16
}

// Pool is a constant pool. Entry 0 is unused and the second slot of every
// Long or Double is a zero Constant, so indexes match the class file.
type Pool struct {
	entries []Constant
	index   map[string]uint16
}

func NewPool() *Pool {
	return &Pool{entries: []Constant{{}}}
}

// Count is the constant_pool_count value: one more than the highest index.
func (p *Pool) Count() int {
	return len(p.entries)
}

// Get returns the entry at i.
func (p *Pool) Get(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, fmt.Errorf("invalid constant pool index %d", i)
	}
	return p.entries[i], nil
}

// Utf8 returns the string held by a CONSTANT_Utf8 entry.
func (p *Pool) Utf8(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	if c.Tag != TagUtf8 {
		return "", fmt.Errorf("constant %d is not Utf8 (tag %d)", i, c.Tag)
	}
	return c.Utf8, nil
}

// ClassName returns the internal name a CONSTANT_Class entry points at.
func (p *Pool) ClassName(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	if c.Tag != TagClass {
		return "", fmt.Errorf("constant %d is not a Class (tag %d)", i, c.Tag)
	}
	return p.Utf8(c.Index1)
}

// MemberRef resolves a Fieldref or Methodref to owner, name and descriptor.
func (p *Pool) MemberRef(i uint16) (owner, name, desc string, err error) {
	c, err := p.Get(i)
	if err != nil {
		return "", "", "", err
	}
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
	default:
		return "", "", "", fmt.Errorf("constant %d is not a member reference (tag %d)", i, c.Tag)
	}
	if owner, err = p.ClassName(c.Index1); err != nil {
		return "", "", "", err
	}
	nat, err := p.Get(c.Index2)
	if err != nil {
		return "", "", "", err
	}
	if nat.Tag != TagNameAndType {
		return "", "", "", fmt.Errorf("constant %d is not NameAndType", c.Index2)
	}
	if name, err = p.Utf8(nat.Index1); err != nil {
		return "", "", "", err
	}
	if desc, err = p.Utf8(nat.Index2); err != nil {
		return "", "", "", err
	}
	return owner, name, desc, nil
}

// SetUtf8 overwrites the string of an existing Utf8 entry.
func (p *Pool) SetUtf8(i uint16, s string) error {
	if _, err := p.Utf8(i); err != nil {
		return err
	}
	p.entries[i].Utf8 = s
	p.index = nil
	return nil
}

// append adds raw entries without deduplication; used by the reader.
func (p *Pool) append(c Constant) {
	p.entries = append(p.entries, c)
	if c.Tag == TagLong || c.Tag == TagDouble {
		p.entries = append(p.entries, Constant{})
	}
}

func constantKey(c Constant) string {
	switch c.Tag {
	case TagUtf8:
		return fmt.Sprintf("%d:%s", c.Tag, c.Utf8)
	case TagInteger:
		return fmt.Sprintf("%d:%d", c.Tag, c.Int)
	case TagFloat:
		// Bit pattern, so 0.0 and -0.0 stay distinct.
		return fmt.Sprintf("%d:%x", c.Tag, math.Float32bits(c.Float))
	case TagLong:
		return fmt.Sprintf("%d:%d", c.Tag, c.Long)
	case TagDouble:
		return fmt.Sprintf("%d:%x", c.Tag, math.Float64bits(c.Double))
	default:
		return fmt.Sprintf("%d:%d:%d:%d", c.Tag, c.Kind, c.Index1, c.Index2)
	}
}

func (p *Pool) add(c Constant) uint16 {
	if p.index == nil {
		p.index = make(map[string]uint16, len(p.entries))
		for i, e := range p.entries {
			if e.Tag == 0 {
				continue
			}
			k := constantKey(e)
			if _, dup := p.index[k]; !dup {
				p.index[k] = uint16(i)
			}
		}
	}
	k := constantKey(c)
	if i, ok := p.index[k]; ok {
		return i
	}
	i := uint16(len(p.entries))
	p.append(c)
	p.index[k] = i
	return i
}

func (p *Pool) AddUtf8(s string) uint16 {
	return p.add(Constant{Tag: TagUtf8, Utf8: s})
}

func (p *Pool) AddInteger(v int32) uint16 {
	return p.add(Constant{Tag: TagInteger, Int: v})
}

func (p *Pool) AddFloat(v float32) uint16 {
	return p.add(Constant{Tag: TagFloat, Float: v})
}

func (p *Pool) AddClass(name string) uint16 {
	return p.add(Constant{Tag: TagClass, Index1: p.AddUtf8(name)})
}

func (p *Pool) AddString(s string) uint16 {
	return p.add(Constant{Tag: TagString, Index1: p.AddUtf8(s)})
}

func (p *Pool) AddNameAndType(name, desc string) uint16 {
	return p.add(Constant{Tag: TagNameAndType, Index1: p.AddUtf8(name), Index2: p.AddUtf8(desc)})
}

func (p *Pool) AddFieldref(owner, name, desc string) uint16 {
	return p.add(Constant{Tag: TagFieldref, Index1: p.AddClass(owner), Index2: p.AddNameAndType(name, desc)})
}

func (p *Pool) AddMethodref(owner, name, desc string) uint16 {
	return p.add(Constant{Tag: TagMethodref, Index1: p.AddClass(owner), Index2: p.AddNameAndType(name, desc)})
}

// Overflowed reports whether the pool outgrew the u2 count field.
func (p *Pool) Overflowed() bool { return len(p.entries) > math.MaxUint16 }
