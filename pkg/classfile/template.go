package classfile

import "fmt"

// TemplateName is the internal name of the built-in template class.
const TemplateName = "BasProgram"

// DefaultMajor is the class file version of the built-in template (Java 8).
const DefaultMajor = 52

// MinMajor is the oldest class file version a template may carry.
const MinMajor = 45

// Opcodes used by the hand-assembled template methods.
const (
	opAload0        = 0x2a
	opDup           = 0x59
	opReturn        = 0xb1
	opInvokevirtual = 0xb6
	opInvokespecial = 0xb7
	opNew           = 0xbb
)

// BuiltinTemplate assembles the default template: a public class
// BasProgram extending runtimeClass with a no-arg constructor, a main
// method that instantiates the class and calls run(), and an empty run().
//
// The compiled program is therefore a subclass of the runtime and reaches
// its helpers through inherited methods. A template that carries the runtime
// methods itself, such as a compiled runtime class named BasProgram, can be
// passed instead and is renamed and patched the same way.
func BuiltinTemplate(runtimeClass string) ([]byte, error) {
	return BuiltinTemplateVersion(runtimeClass, DefaultMajor)
}

// BuiltinTemplateVersion is BuiltinTemplate with an explicit major version.
func BuiltinTemplateVersion(runtimeClass string, major uint16) ([]byte, error) {
	if major < MinMajor {
		return nil, fmt.Errorf("unsupported class file version %d", major)
	}
	p := NewPool()
	cf := &ClassFile{
		Major:      major,
		Pool:       p,
		Access:     AccPublic | AccSuper,
		ThisClass:  p.AddClass(TemplateName),
		SuperClass: p.AddClass(runtimeClass),
	}

	superInit := p.AddMethodref(runtimeClass, "<init>", "()V")
	thisInit := p.AddMethodref(TemplateName, "<init>", "()V")
	run := p.AddMethodref(TemplateName, "run", "()V")

	methods := []struct {
		access     uint16
		name, desc string
		code       Code
	}{
		{AccPublic, "<init>", "()V", Code{MaxStack: 1, MaxLocals: 1, Code: []byte{
			opAload0,
			opInvokespecial, byte(superInit >> 8), byte(superInit),
			opReturn,
		}}},
		{AccPublic | AccStatic, "main", "([Ljava/lang/String;)V", Code{MaxStack: 2, MaxLocals: 1, Code: []byte{
			opNew, byte(cf.ThisClass >> 8), byte(cf.ThisClass),
			opDup,
			opInvokespecial, byte(thisInit >> 8), byte(thisInit),
			opInvokevirtual, byte(run >> 8), byte(run),
			opReturn,
		}}},
		{AccPublic, "run", "()V", Code{MaxStack: 0, MaxLocals: 1, Code: []byte{opReturn}}},
	}
	codeName := p.AddUtf8("Code")
	for _, m := range methods {
		data, err := m.code.Bytes()
		if err != nil {
			return nil, err
		}
		cf.Methods = append(cf.Methods, Member{
			Access:     m.access,
			NameIndex:  p.AddUtf8(m.name),
			DescIndex:  p.AddUtf8(m.desc),
			Attributes: []Attribute{{NameIndex: codeName, Data: data}},
		})
	}
	return cf.Bytes()
}
