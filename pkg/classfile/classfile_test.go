package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTemplateParses(t *testing.T) {
	data, err := BuiltinTemplate("BasRuntime")
	require.NoError(t, err)

	cf, err := Parse(data)
	require.NoError(t, err)

	name, err := cf.Name()
	require.NoError(t, err)
	assert.Equal(t, TemplateName, name)

	super, err := cf.SuperName()
	require.NoError(t, err)
	assert.Equal(t, "BasRuntime", super)
	assert.Equal(t, uint16(52), cf.Major)

	for _, m := range []struct{ name, desc string }{
		{"<init>", "()V"},
		{"main", "([Ljava/lang/String;)V"},
		{"run", "()V"},
	} {
		_, err := cf.MethodCode(m.name, m.desc)
		assert.NoError(t, err, "%s%s", m.name, m.desc)
	}

	// Parse followed by Bytes reproduces the input exactly.
	out, err := cf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestRename(t *testing.T) {
	data, err := BuiltinTemplate("BasRuntime")
	require.NoError(t, err)
	cf, err := Parse(data)
	require.NoError(t, err)

	// A descriptor that mentions the class must follow the rename.
	desc := cf.Pool.AddUtf8("(LBasProgram;[LBasProgram;)V")

	require.NoError(t, cf.Rename("Hello_bas"))

	name, err := cf.Name()
	require.NoError(t, err)
	assert.Equal(t, "Hello_bas", name)

	got, err := cf.Pool.Utf8(desc)
	require.NoError(t, err)
	assert.Equal(t, "(LHello_bas;[LHello_bas;)V", got)

	// Method references that went through this_class are renamed with it.
	code, err := cf.MethodCode("main", "([Ljava/lang/String;)V")
	require.NoError(t, err)
	ref := uint16(code.Code[5])<<8 | uint16(code.Code[6])
	owner, member, _, err := cf.Pool.MemberRef(ref)
	require.NoError(t, err)
	assert.Equal(t, "Hello_bas", owner)
	assert.Equal(t, "<init>", member)

	assert.Error(t, cf.Rename("a.b"))
	assert.Error(t, cf.Rename(""))
}

func TestSetMethodCode(t *testing.T) {
	data, err := BuiltinTemplate("BasRuntime")
	require.NoError(t, err)
	cf, err := Parse(data)
	require.NoError(t, err)

	body := &Code{MaxStack: 1, MaxLocals: 3, Code: []byte{0x0b, 0x44, opReturn}}
	require.NoError(t, cf.SetMethodCode("run", "()V", body))

	out, err := cf.Bytes()
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)

	code, err := again.MethodCode("run", "()V")
	require.NoError(t, err)
	assert.Equal(t, body.Code, code.Code)
	assert.Equal(t, uint16(3), code.MaxLocals)

	assert.Error(t, cf.SetMethodCode("missing", "()V", body))
	assert.Error(t, cf.SetMethodCode("run", "()V", &Code{}))
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"ABC", []byte("ABC")},
		{"\x00", []byte{0xC0, 0x80}},
		{"é", []byte{0xC3, 0xA9}},
		{"€", []byte{0xE2, 0x82, 0xAC}},
		{"😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tc := range tests {
		got := encodeModifiedUTF8(tc.in)
		assert.Equal(t, tc.want, got, "encode %q", tc.in)
		back, err := decodeModifiedUTF8(got)
		require.NoError(t, err)
		assert.Equal(t, tc.in, back)
	}

	_, err := decodeModifiedUTF8([]byte{0xE2, 0x82})
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	data, err := BuiltinTemplate("BasRuntime")
	require.NoError(t, err)

	_, err = Parse([]byte{0xCA, 0xFE, 0xBA, 0xBF, 0, 0, 0, 52})
	assert.ErrorContains(t, err, "bad magic")

	_, err = Parse(data[:len(data)-3])
	assert.ErrorContains(t, err, "unexpected end")

	_, err = Parse(append(append([]byte{}, data...), 0))
	assert.ErrorContains(t, err, "trailing")
}

func TestPoolDeduplicates(t *testing.T) {
	p := NewPool()
	a := p.AddMethodref("java/lang/Math", "abs", "(F)F")
	b := p.AddMethodref("java/lang/Math", "abs", "(F)F")
	assert.Equal(t, a, b)

	z := p.AddFloat(0)
	nz := p.AddFloat(float32(negZero()))
	assert.NotEqual(t, z, nz)

	owner, name, desc, err := p.MemberRef(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"java/lang/Math", "abs", "(F)F"}, []string{owner, name, desc})

	_, err = p.Utf8(0)
	assert.Error(t, err)
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestBuiltinTemplateVersion(t *testing.T) {
	data, err := BuiltinTemplateVersion("R", 49)
	require.NoError(t, err)
	cf, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(49), cf.Major)

	_, err = BuiltinTemplateVersion("R", 44)
	assert.ErrorContains(t, err, "unsupported class file version 44")
}
