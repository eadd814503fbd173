package classfile

import (
	"fmt"
	"strings"
)

// Rename changes the class's own name to newName. The Class entry gets a
// fresh Utf8 so other users of the old string are left alone; field and
// method descriptors that mention the class ("Lold;") are rewritten.
func (cf *ClassFile) Rename(newName string) error {
	if newName == "" || strings.ContainsAny(newName, ".;[") {
		return fmt.Errorf("invalid class name %q", newName)
	}
	old, err := cf.Name()
	if err != nil {
		return err
	}
	if old == newName {
		return nil
	}
	oldRef, newRef := "L"+old+";", "L"+newName+";"
	for i := 1; i < len(cf.Pool.entries); i++ {
		c := cf.Pool.entries[i]
		if c.Tag == TagUtf8 && strings.Contains(c.Utf8, oldRef) {
			if err := cf.Pool.SetUtf8(uint16(i), strings.ReplaceAll(c.Utf8, oldRef, newRef)); err != nil {
				return err
			}
		}
	}
	cf.Pool.entries[cf.ThisClass].Index1 = cf.Pool.AddUtf8(newName)
	cf.Pool.index = nil
	return nil
}

// SetMethodCode replaces the Code attribute of an existing method.
func (cf *ClassFile) SetMethodCode(name, desc string, code *Code) error {
	m, err := cf.FindMethod(name, desc)
	if err != nil {
		return err
	}
	data, err := code.Bytes()
	if err != nil {
		return fmt.Errorf("%s%s: %w", name, desc, err)
	}
	attr := Attribute{NameIndex: cf.Pool.AddUtf8("Code"), Data: data}
	if i, ok := cf.FindAttribute(m.Attributes, "Code"); ok {
		m.Attributes[i] = attr
		return nil
	}
	return fmt.Errorf("method %s%s is abstract or native", name, desc)
}
