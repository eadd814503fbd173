package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg := Defaults
	src := `
[Compiler]
FoldCase = true
ClassVersion = 50

[Runtime]
Seed = 7
MaxSteps = 1000
`
	require.NoError(t, Decode(strings.NewReader(src), &cfg))
	assert.True(t, cfg.Compiler.FoldCase)
	assert.EqualValues(t, 50, cfg.Compiler.ClassVersion)
	assert.Equal(t, "BasRuntime", cfg.Compiler.RuntimeClass)
	assert.Equal(t, 10, cfg.Compiler.DefaultArraySize)
	assert.EqualValues(t, 7, cfg.Runtime.Seed)
	assert.EqualValues(t, 1000, cfg.Runtime.MaxSteps)
	assert.Equal(t, 14, cfg.Runtime.PrintZoneWidth)
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	cfg := Defaults
	err := Decode(strings.NewReader("[Runtime]\nSpeed = 3\n"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Speed' is not defined in config.Runtime")
}

func TestValidate(t *testing.T) {
	cfg := Defaults
	cfg.Compiler.ClassVersion = 40
	assert.ErrorContains(t, cfg.Validate(), "older than any JVM")

	cfg = Defaults
	cfg.Runtime.PrintZoneWidth = -1
	assert.Error(t, cfg.Validate())

	cfg = Defaults
	assert.NoError(t, cfg.Validate())
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Defaults
	cfg.Runtime.Seed = 42
	out, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "[Compiler]")
	assert.NotContains(t, string(out), "Template")

	var back Config
	require.NoError(t, Decode(bytes.NewReader(out), &back))
	assert.Equal(t, cfg, back)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(file, []byte("[Compiler]\nFold = true\n"), 0o644))
	_, err := Load(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Fold' is not defined")

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestCompilerOptions(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "T.class")
	require.NoError(t, os.WriteFile(tmpl, []byte{0xca, 0xfe}, 0o644))

	cfg := Defaults
	cfg.Compiler.Template = tmpl
	cfg.Compiler.FoldCase = true
	opts, err := cfg.CompilerOptions()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, opts.Template)
	assert.True(t, opts.FoldCase)
	assert.Equal(t, "BasRuntime", opts.RuntimeClass)

	cfg.Compiler.Template = filepath.Join(dir, "none.class")
	_, err = cfg.CompilerOptions()
	assert.ErrorContains(t, err, "reading template")
}

func TestVMOptions(t *testing.T) {
	cfg := Defaults
	cfg.Runtime.Seed = 3
	opts := cfg.VMOptions()
	assert.EqualValues(t, 3, opts.Seed)
	assert.Equal(t, 14, opts.ZoneWidth)
	assert.Nil(t, opts.Output)
}
