package compiler

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"gobasic/pkg/classfile"
)

// DefaultRuntimeClass is the superclass of the built-in template.
const DefaultRuntimeClass = "BasRuntime"

// Options controls a compilation.
type Options struct {
	// Template is the class file to patch; nil selects the built-in
	// template extending RuntimeClass.
	Template     []byte
	RuntimeClass string

	// ClassVersion is the major version of the built-in template; zero
	// selects Java 8. Below 50 no stack map frames are emitted.
	ClassVersion uint16

	// DefaultArraySize is the length of arrays used without DIM.
	DefaultArraySize int

	// FoldCase upper-cases the source outside string literals.
	FoldCase bool
}

func (o Options) withDefaults() Options {
	if o.RuntimeClass == "" {
		o.RuntimeClass = DefaultRuntimeClass
	}
	if o.DefaultArraySize <= 0 {
		o.DefaultArraySize = 10
	}
	return o
}

// TemplateBytes returns the configured template, building the default
// one when none is set.
func (o Options) TemplateBytes() ([]byte, error) {
	o = o.withDefaults()
	if o.Template != nil {
		return o.Template, nil
	}
	if o.ClassVersion != 0 {
		return classfile.BuiltinTemplateVersion(o.RuntimeClass, o.ClassVersion)
	}
	return classfile.BuiltinTemplate(o.RuntimeClass)
}

// Compile turns BASIC source into the bytes of a class named className.
func Compile(src, className string, opts Options) ([]byte, error) {
	if opts.FoldCase {
		src = FoldCase(src)
	}
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	plan, err := Generate(prog, opts)
	if err != nil {
		return nil, err
	}
	template, err := opts.TemplateBytes()
	if err != nil {
		return nil, fmt.Errorf("building template: %w", err)
	}
	out, err := plan.Emit(className, template)
	if err != nil {
		return nil, err
	}
	log.Info("Compiled program", "class", className, "lines", len(prog.Lines), "bytes", len(out))
	return out, nil
}
