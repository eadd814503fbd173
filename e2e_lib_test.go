package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobasic/pkg/classfile"
	"gobasic/pkg/compiler"
	"gobasic/pkg/config"
	"gobasic/pkg/utils"
	"gobasic/pkg/vm"
)

func TestSamplePrograms(t *testing.T) {
	sources, err := filepath.Glob("testdata/*.bas")
	require.NoError(t, err)
	require.NotEmpty(t, sources)

	for _, src := range sources {
		name := utils.ClassName(src)
		t.Run(name, func(t *testing.T) {
			source, err := os.ReadFile(src)
			require.NoError(t, err)
			want, err := os.ReadFile(strings.TrimSuffix(src, ".bas") + ".out")
			require.NoError(t, err)

			class, err := compiler.Compile(string(source), name, compiler.Options{})
			require.NoError(t, err)

			var output bytes.Buffer
			err = vm.RunClass(context.Background(), class, vm.Options{Output: &output, Seed: 1, MaxSteps: 1_000_000})
			require.NoError(t, err)
			assert.Equal(t, string(want), output.String())
		})
	}
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "Hello.class")
	var stdout bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	err := app.Run([]string{"gobasic", "compile", "--verbosity", "0", "--out", out, "testdata/hello.bas"})
	require.NoError(t, err)
	assert.Equal(t, out+"\n", stdout.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	cf, err := classfile.Parse(data)
	require.NoError(t, err)
	name, err := cf.Name()
	require.NoError(t, err)
	assert.Equal(t, "hello", name)
}

func TestCompileCommandRunsInsteadOfWriting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.bas")
	source, err := os.ReadFile("testdata/hello.bas")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, source, 0o644))

	var stdout bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	err = app.Run([]string{"gobasic", "compile", "--verbosity", "0", "--run", "--seed", "1", src})
	require.NoError(t, err)
	assert.Equal(t, "HELLO, WORLD\n", stdout.String())
	_, err = os.Stat(filepath.Join(dir, "hello.class"))
	assert.True(t, os.IsNotExist(err))
}

func TestCompileCommandUsesOutputDir(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "gobasic.toml")
	cfg := config.Defaults
	cfg.Compiler.OutputDir = dir
	data, err := cfg.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgFile, data, 0o644))

	err = newApp().Run([]string{"gobasic", "--config", cfgFile, "compile", "--verbosity", "0", "testdata/squares.bas"})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "squares.class"))
	assert.NoError(t, err)
}

func TestCompileCommandReportsFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.bas")
	require.NoError(t, os.WriteFile(src, []byte("10 GOTO 20\n"), 0o644))

	err := newApp().Run([]string{"gobasic", "compile", "--verbosity", "0", src})
	require.Error(t, err)
	assert.Contains(t, err.Error(), src+": label 10: unknown line 20")
	_, err = os.Stat(filepath.Join(dir, "bad.class"))
	assert.True(t, os.IsNotExist(err))
}

func TestDumpConfig(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dump.toml")
	err := newApp().Run([]string{"gobasic", "dumpconfig", "--verbosity", "0", "--seed", "9", out})
	require.NoError(t, err)

	cfg, err := config.Load(out)
	require.NoError(t, err)
	assert.EqualValues(t, 9, cfg.Runtime.Seed)
	assert.Equal(t, 0, cfg.Log.Verbosity)
}
