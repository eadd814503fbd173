// Package config holds the TOML configuration shared by the gobasic tools.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"

	"gobasic/pkg/classfile"
	"gobasic/pkg/compiler"
	"gobasic/pkg/vm"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Compiler configures code generation.
type Compiler struct {
	// Template is the path of a class file to patch instead of the
	// built-in one.
	Template         string `toml:",omitempty"`
	RuntimeClass     string
	ClassVersion     uint16
	DefaultArraySize int
	FoldCase         bool
	OutputDir        string `toml:",omitempty"`
}

// Runtime configures the execution harness.
type Runtime struct {
	Seed           int64
	PrintZoneWidth int
	MaxSteps       int64
}

// Log configures the log handler of the command line tools.
type Log struct {
	Verbosity int
	Color     bool
}

// Config is the top-level configuration.
type Config struct {
	Compiler Compiler
	Runtime  Runtime
	Log      Log
}

// Defaults is the configuration used when no file is given.
var Defaults = Config{
	Compiler: Compiler{
		RuntimeClass:     compiler.DefaultRuntimeClass,
		DefaultArraySize: 10,
	},
	Runtime: Runtime{
		PrintZoneWidth: vm.DefaultZoneWidth,
	},
	Log: Log{
		Verbosity: 3,
		Color:     true,
	},
}

// Load reads file on top of Defaults.
func Load(file string) (Config, error) {
	cfg := Defaults
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = Decode(bufio.NewReader(f), &cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return cfg, err
}

// Decode reads TOML from r into cfg, leaving absent keys untouched.
func Decode(r io.Reader, cfg *Config) error {
	if err := tomlSettings.NewDecoder(r).Decode(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate rejects values no tool can work with.
func (c *Config) Validate() error {
	if c.Compiler.ClassVersion != 0 && c.Compiler.ClassVersion < classfile.MinMajor {
		return fmt.Errorf("Compiler.ClassVersion %d is older than any JVM", c.Compiler.ClassVersion)
	}
	if c.Compiler.DefaultArraySize < 0 {
		return fmt.Errorf("Compiler.DefaultArraySize must not be negative")
	}
	if c.Runtime.PrintZoneWidth < 0 {
		return fmt.Errorf("Runtime.PrintZoneWidth must not be negative")
	}
	return nil
}

// Marshal renders the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return tomlSettings.Marshal(c)
}

// CompilerOptions converts the [Compiler] section, reading the template
// file when one is set.
func (c *Config) CompilerOptions() (compiler.Options, error) {
	opts := compiler.Options{
		RuntimeClass:     c.Compiler.RuntimeClass,
		ClassVersion:     c.Compiler.ClassVersion,
		DefaultArraySize: c.Compiler.DefaultArraySize,
		FoldCase:         c.Compiler.FoldCase,
	}
	if c.Compiler.Template != "" {
		data, err := os.ReadFile(c.Compiler.Template)
		if err != nil {
			return opts, fmt.Errorf("reading template: %w", err)
		}
		opts.Template = data
	}
	return opts, nil
}

// VMOptions converts the [Runtime] section. Output and input are left to
// the caller.
func (c *Config) VMOptions() vm.Options {
	return vm.Options{
		Seed:      c.Runtime.Seed,
		ZoneWidth: c.Runtime.PrintZoneWidth,
		MaxSteps:  c.Runtime.MaxSteps,
	}
}
