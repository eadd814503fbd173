package compiler

import (
	"fmt"
	"strconv"

	"github.com/google/btree"

	"gobasic/pkg/asm"
)

// Slot is a JVM local variable slot holding one BASIC variable. Slot 0 is
// the program object itself.
type Slot struct {
	Index  int
	Key    string
	Type   DataType
	Array  *ArrayDim // nil for scalars
	Hidden bool      // loop bookkeeping, not a user variable
}

// Descriptor is the JVM type of the slot's contents.
func (s *Slot) Descriptor() string {
	if s.Array == nil {
		return s.Type.Descriptor()
	}
	return arrayDescriptor(*s.Array)
}

func arrayDescriptor(d ArrayDim) string {
	desc := d.Type.Descriptor()
	for i := 0; i < d.Dims; i++ {
		desc = "[" + desc
	}
	return desc
}

// lineEntry is a program line in the ordered line index. Its branch
// target is created on first reference.
type lineEntry struct {
	number     int
	label      string
	target     asm.Label
	referenced bool
}

func (l *lineEntry) Less(than btree.Item) bool { return l.number < than.(*lineEntry).number }

// dataMark records the pool offset of the first constant of a DATA line.
type dataMark struct {
	number int
	offset int
}

func (d *dataMark) Less(than btree.Item) bool { return d.number < than.(*dataMark).number }

// ArrayInfo is the registered shape of an array.
type ArrayInfo struct {
	Dim    ArrayDim
	Dimmed bool   // declared by DIM
	Label  string // line where the shape was first fixed
}

type openLoop struct {
	id    int
	v     string
	body  asm.Label
	label string
}

// SymbolTable holds everything the code generator learns about a
// program: variable slots, line targets, arrays, the DATA pool, GOSUB
// return sites and open FOR loops.
type SymbolTable struct {
	labels  asm.Labels
	owners  map[asm.Label]string // line label of every branch label
	slots   []*Slot
	byKey   map[string]*Slot
	lines   *btree.BTree
	arrays  map[string]*ArrayInfo
	order   []string // array keys in registration order
	data    []any    // float32 or string
	marks   *btree.BTree
	sites   int32
	loops   []openLoop
	nextFor int

	// End is the label of the final return.
	End asm.Label
}

func NewSymbolTable(prog *Program) *SymbolTable {
	s := &SymbolTable{
		owners: make(map[asm.Label]string),
		byKey:  make(map[string]*Slot),
		lines:  btree.New(4),
		arrays: make(map[string]*ArrayInfo),
		marks:  btree.New(4),
	}
	for _, l := range prog.Lines {
		s.lines.ReplaceOrInsert(&lineEntry{number: l.Number(), label: l.Label})
	}
	s.End = s.NewLabel("")
	return s
}

// NewLabel creates a branch label belonging to the given line.
func (s *SymbolTable) NewLabel(line string) asm.Label {
	l := s.labels.New()
	s.owners[l] = line
	return l
}

// LabelLine returns the line label a branch label was created for.
func (s *SymbolTable) LabelLine(l asm.Label) string {
	return s.owners[l]
}

func (s *SymbolTable) line(label string) (*lineEntry, bool) {
	n, err := strconv.Atoi(label)
	if err != nil {
		return nil, false
	}
	item := s.lines.Get(&lineEntry{number: n})
	if item == nil {
		return nil, false
	}
	return item.(*lineEntry), true
}

func (s *SymbolTable) reference(e *lineEntry) asm.Label {
	if e.target == 0 {
		e.target = s.NewLabel(e.label)
	}
	e.referenced = true
	return e.target
}

// LineTarget returns the branch target of a line and marks it live.
func (s *SymbolTable) LineTarget(label string) (asm.Label, error) {
	e, ok := s.line(label)
	if !ok {
		return 0, fmt.Errorf("unknown line %s", label)
	}
	return s.reference(e), nil
}

// NextLineTarget returns the target of the first line after number, or
// End when number is the last line.
func (s *SymbolTable) NextLineTarget(number int) asm.Label {
	var next *lineEntry
	s.lines.AscendGreaterOrEqual(&lineEntry{number: number + 1}, func(item btree.Item) bool {
		next = item.(*lineEntry)
		return false
	})
	if next == nil {
		return s.End
	}
	return s.reference(next)
}

// PlacedTarget returns the label to place at the start of a line, if
// anything jumps there.
func (s *SymbolTable) PlacedTarget(label string) (asm.Label, bool) {
	e, ok := s.line(label)
	if !ok || !e.referenced {
		return 0, false
	}
	return e.target, true
}

// LiveTargets lists the referenced lines in label order.
func (s *SymbolTable) LiveTargets() []string {
	var out []string
	s.lines.Ascend(func(item btree.Item) bool {
		if e := item.(*lineEntry); e.referenced {
			out = append(out, e.label)
		}
		return true
	})
	return out
}

func (s *SymbolTable) allocate(key string, t DataType, array *ArrayDim, hidden bool) *Slot {
	if slot, ok := s.byKey[key]; ok {
		return slot
	}
	slot := &Slot{Index: len(s.slots) + 1, Key: key, Type: t, Array: array, Hidden: hidden}
	s.slots = append(s.slots, slot)
	s.byKey[key] = slot
	return slot
}

// ScalarSlot returns the slot of a scalar variable, allocating it.
func (s *SymbolTable) ScalarSlot(name string) *Slot {
	return s.allocate(name, TypeOfName(name), nil, false)
}

// ArraySlot returns the slot of a registered array.
func (s *SymbolTable) ArraySlot(name string) *Slot {
	info := s.arrays[name+"()"]
	dim := info.Dim
	return s.allocate(name+"()", dim.Type, &dim, false)
}

// Slots lists every slot in allocation order.
func (s *SymbolTable) Slots() []*Slot {
	return s.slots
}

// UseArray registers an array reference with the given shape.
func (s *SymbolTable) UseArray(d ArrayDim, line string) error {
	key := d.Name + "()"
	info, ok := s.arrays[key]
	if !ok {
		s.arrays[key] = &ArrayInfo{Dim: d, Label: line}
		s.order = append(s.order, key)
		return nil
	}
	if info.Dim.Dims != d.Dims {
		if info.Dimmed {
			return fmt.Errorf("%s was dimensioned with %d dimensions but is used with %d", d.Name, info.Dim.Dims, d.Dims)
		}
		return fmt.Errorf("%s is used with %d dimensions at line %s and %d here", d.Name, info.Dim.Dims, info.Label, d.Dims)
	}
	return nil
}

// DeclareArray registers a DIM.
func (s *SymbolTable) DeclareArray(d ArrayDim, line string) error {
	key := d.Name + "()"
	info, ok := s.arrays[key]
	if !ok {
		s.arrays[key] = &ArrayInfo{Dim: d, Dimmed: true, Label: line}
		s.order = append(s.order, key)
		return nil
	}
	if info.Dimmed {
		return fmt.Errorf("%s is already dimensioned at line %s", d.Name, info.Label)
	}
	if info.Dim.Dims != d.Dims {
		return fmt.Errorf("%s is used with %d dimensions at line %s but dimensioned with %d", d.Name, info.Dim.Dims, info.Label, d.Dims)
	}
	info.Dimmed, info.Label = true, line
	return nil
}

// Arrays lists the registered arrays in registration order.
func (s *SymbolTable) Arrays() []*ArrayInfo {
	out := make([]*ArrayInfo, len(s.order))
	for i, k := range s.order {
		out[i] = s.arrays[k]
	}
	return out
}

// checkArrays rejects multi-dimensional arrays that are never DIMed.
func (s *SymbolTable) checkArrays() error {
	for _, info := range s.Arrays() {
		if !info.Dimmed && info.Dim.Dims != 1 {
			return &CodeGenError{Label: info.Label, Msg: fmt.Sprintf("%s has %d dimensions and must be DIMed", info.Dim.Name, info.Dim.Dims)}
		}
	}
	return nil
}

// AddData appends the constants of a DATA statement to the pool.
func (s *SymbolTable) AddData(number int, values []Expr) {
	if !s.marks.Has(&dataMark{number: number}) {
		s.marks.ReplaceOrInsert(&dataMark{number: number, offset: len(s.data)})
	}
	for _, v := range values {
		switch c := v.(type) {
		case *NumberLit:
			s.data = append(s.data, c.Value)
		case *StringLit:
			s.data = append(s.data, c.Value)
		}
	}
}

// Data returns the DATA pool.
func (s *SymbolTable) Data() []any {
	return s.data
}

// DataOffset returns the pool offset of the first DATA at or after label.
// An empty label means the start of the pool.
func (s *SymbolTable) DataOffset(label string) (int, error) {
	if label == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(label)
	if err != nil {
		return 0, fmt.Errorf("invalid line %q", label)
	}
	offset := -1
	s.marks.AscendGreaterOrEqual(&dataMark{number: n}, func(item btree.Item) bool {
		offset = item.(*dataMark).offset
		return false
	})
	if offset < 0 {
		return 0, fmt.Errorf("no DATA at or after line %s", label)
	}
	return offset, nil
}

// DataLines maps each DATA line to its pool offset.
func (s *SymbolTable) DataLines() map[int]int {
	out := make(map[int]int)
	s.marks.Ascend(func(item btree.Item) bool {
		m := item.(*dataMark)
		out[m.number] = m.offset
		return true
	})
	return out
}

// NextReturnSite numbers GOSUB call sites.
func (s *SymbolTable) NextReturnSite() int32 {
	k := s.sites
	s.sites++
	return k
}

// pushLoop opens a FOR loop and returns its id.
func (s *SymbolTable) pushLoop(v string, body asm.Label, line string) int {
	s.nextFor++
	s.loops = append(s.loops, openLoop{id: s.nextFor, v: v, body: body, label: line})
	return s.nextFor
}

// popLoop closes the innermost loop, or with a name the innermost loop
// over that variable wherever it sits in the stack.
func (s *SymbolTable) popLoop(v string) (openLoop, error) {
	if len(s.loops) == 0 {
		return openLoop{}, fmt.Errorf("NEXT without FOR")
	}
	i := len(s.loops) - 1
	if v != "" {
		for ; i >= 0 && s.loops[i].v != v; i-- {
		}
		if i < 0 {
			return openLoop{}, fmt.Errorf("NEXT %s without FOR %s", v, v)
		}
	}
	l := s.loops[i]
	s.loops = append(s.loops[:i], s.loops[i+1:]...)
	return l, nil
}

// OpenLoops lists the variables of loops never closed, innermost last.
func (s *SymbolTable) OpenLoops() []string {
	out := make([]string, len(s.loops))
	for i, l := range s.loops {
		out[i] = l.v
	}
	return out
}

func forSlotKey(kind string, id int) string {
	return "#FOR#" + kind + "#" + strconv.Itoa(id)
}
