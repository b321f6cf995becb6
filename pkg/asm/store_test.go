package asm

import (
	"errors"
	"testing"

	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/kernel/sdfx"
	"github.com/chazu/asmdoc/pkg/xform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0", false},
		{"0:1", false},
		{"0:1:12:3", false},
		{"", true},
		{"0:", true},
		{":1", true},
		{"0:-1", true},
		{"0:01", true},
		{"0:a", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestAddressNavigation(t *testing.T) {
	a := AssemblyAddress.Child(4).Child(2)
	assert.Equal(t, Address("0:1:4:2"), a)
	assert.Equal(t, 2, a.Tag())
	p, ok := a.Parent()
	require.True(t, ok)
	assert.Equal(t, Address("0:1:4"), p)
	assert.True(t, a.IsUnder(AssemblyAddress))
	assert.False(t, a.IsUnder(LibraryAddress))
	_, ok = RootAddress.Parent()
	assert.False(t, ok)
}

func TestStoreFixedLabels(t *testing.T) {
	s := NewStore(sdfx.New(), nil)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []Address{AssemblyAddress, LibraryAddress}, s.Children(RootAddress))
	p, ok := s.Parent(LibraryAddress)
	require.True(t, ok)
	assert.Equal(t, RootAddress, p)
}

func TestStoreCreateLabel(t *testing.T) {
	s := NewStore(sdfx.New(), nil)

	part, err := s.CreateLabel("", LabelPart)
	require.NoError(t, err)
	assert.Equal(t, Address("0:2:1"), part)

	asm, err := s.CreateLabel("", LabelAssembly)
	require.NoError(t, err)
	assert.Equal(t, Address("0:1:1"), asm)

	inst, err := s.CreateLabel(asm, LabelInstance)
	require.NoError(t, err)
	assert.Equal(t, Address("0:1:1:1"), inst)

	tests := []struct {
		name   string
		parent Address
		kind   LabelKind
	}{
		{"unknown parent", "0:1:99", LabelAssembly},
		{"part outside library", AssemblyAddress, LabelPart},
		{"instance under library", LibraryAddress, LabelInstance},
		{"child of instance", inst, LabelInstance},
		{"child of part", part, LabelAssembly},
		{"root kind", AssemblyAddress, LabelRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateLabel(tt.parent, tt.kind)
			assert.ErrorIs(t, err, ErrInvalidParent)
		})
	}
}

func TestStoreAddressesNeverReused(t *testing.T) {
	s := NewStore(sdfx.New(), nil)
	a, err := s.CreateLabel("", LabelAssembly)
	require.NoError(t, err)
	require.NoError(t, s.Remove(a))

	b, err := s.CreateLabel("", LabelAssembly)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, Address("0:1:2"), b)
}

func TestStoreSettersUnknownLabel(t *testing.T) {
	s := NewStore(sdfx.New(), nil)
	missing := Address("0:1:7")
	red := kernel.RGB(1, 0, 0)

	assert.ErrorIs(t, s.SetName(missing, "x"), ErrUnknownLabel)
	assert.ErrorIs(t, s.SetColor(missing, &red), ErrUnknownLabel)
	assert.ErrorIs(t, s.SetTransform(missing, xform.Identity()), ErrUnknownLabel)
	assert.ErrorIs(t, s.SetShape(missing, nil), ErrUnknownLabel)
	assert.ErrorIs(t, s.SetPartRef(missing, "0:2:1"), ErrUnknownLabel)
}

func TestStoreSetShapeOnlyOnParts(t *testing.T) {
	k := sdfx.New()
	s := NewStore(k, nil)
	a, err := s.CreateLabel("", LabelAssembly)
	require.NoError(t, err)
	err = s.SetShape(a, k.Box(1, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestStoreRemoveIdempotent(t *testing.T) {
	s := NewStore(sdfx.New(), nil)
	a, _ := s.CreateLabel("", LabelAssembly)
	b, _ := s.CreateLabel("", LabelAssembly)
	child, _ := s.CreateLabel(a, LabelAssembly)

	require.NoError(t, s.Remove(a))
	require.NoError(t, s.Remove(a))
	require.NoError(t, s.Remove(child)) // already gone with its parent

	_, ok := s.Get(child)
	assert.False(t, ok)
	_, ok = s.Get(b)
	assert.True(t, ok, "sibling must survive")
	assert.Equal(t, []Address{b}, s.Children(AssemblyAddress))
	assert.Equal(t, 1, s.Len())
}

func TestStoreRemoveFixedClearsChildren(t *testing.T) {
	s := NewStore(sdfx.New(), nil)
	_, _ = s.CreateLabel("", LabelAssembly)
	_, _ = s.CreateLabel("", LabelPart)

	require.NoError(t, s.Remove(AssemblyAddress))
	_, ok := s.Get(AssemblyAddress)
	assert.True(t, ok, "fixed label must survive")
	assert.Empty(t, s.Children(AssemblyAddress))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())
}

func TestStoreWalkOrder(t *testing.T) {
	s := NewStore(sdfx.New(), nil)
	a, _ := s.CreateLabel("", LabelAssembly)
	a1, _ := s.CreateLabel(a, LabelInstance)
	a2, _ := s.CreateLabel(a, LabelAssembly)
	a21, _ := s.CreateLabel(a2, LabelInstance)
	b, _ := s.CreateLabel("", LabelInstance)

	var got []Address
	var depths []int
	err := s.Walk(AssemblyAddress, func(l *Label, depth int) error {
		got = append(got, l.Address())
		depths = append(depths, depth)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Address{AssemblyAddress, a, a1, a2, a21, b}, got)
	assert.Equal(t, []int{0, 1, 2, 2, 3, 1}, depths)

	stop := errors.New("stop")
	n := 0
	err = s.Walk(AssemblyAddress, func(*Label, int) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, s.Walk("0:9", func(*Label, int) error { return nil }), ErrUnknownLabel)
}

func TestStoreSharedShapeReleasedOnce(t *testing.T) {
	k := sdfx.New()
	s := NewStore(k, nil)
	shape := k.Box(1, 1, 1)

	p1, _ := s.CreateLabel("", LabelPart)
	p2, _ := s.CreateLabel("", LabelPart)
	require.NoError(t, s.SetShape(p1, shape))
	require.NoError(t, s.SetShape(p2, shape))

	require.NoError(t, s.Remove(p1))
	assert.Equal(t, 1, k.Live(), "shape still owned by p2")

	require.NoError(t, s.Remove(p2))
	assert.Equal(t, 0, k.Live())
}

func TestStoreSetShapeReplaces(t *testing.T) {
	k := sdfx.New()
	s := NewStore(k, nil)
	p, _ := s.CreateLabel("", LabelPart)
	require.NoError(t, s.SetShape(p, k.Box(1, 1, 1)))
	require.NoError(t, s.SetShape(p, k.Sphere(1)))
	assert.Equal(t, 1, k.Live(), "old shape must be released")

	inst, _ := s.CreateLabel("", LabelInstance)
	require.NoError(t, s.SetPartRef(inst, p))
	got, err := s.ResolveShape(inst)
	require.NoError(t, err)
	l, _ := s.Get(p)
	assert.Equal(t, l.Shape(), got)
}

func TestStoreSetPartRef(t *testing.T) {
	s := NewStore(sdfx.New(), nil)
	a, _ := s.CreateLabel("", LabelAssembly)
	inst, _ := s.CreateLabel("", LabelInstance)
	assert.ErrorIs(t, s.SetPartRef(a, "0:2:1"), ErrInvalidParent)
	assert.ErrorIs(t, s.SetPartRef(inst, a), ErrUnknownPartID)
}

func TestPartRegistry(t *testing.T) {
	r := NewPartRegistry()
	require.NoError(t, r.Register("box", "0:2:1"))
	require.NoError(t, r.Register("ball", "0:2:2"))

	err := r.Register("box", "0:2:3")
	assert.ErrorIs(t, err, ErrDuplicatePartID)
	assert.Equal(t, KindDuplicatePartID, KindOf(err))

	addr, err := r.Resolve("ball")
	require.NoError(t, err)
	assert.Equal(t, Address("0:2:2"), addr)

	_, err = r.Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownPartID)
	assert.Equal(t, []string{"box", "ball"}, r.IDs())
	assert.Equal(t, 2, r.Len())
}

func TestErrorMatching(t *testing.T) {
	err := error(&Error{Kind: KindCyclicParent, ID: "a,b"})
	assert.ErrorIs(t, err, ErrCyclicParent)
	assert.NotErrorIs(t, err, ErrUnknownLabel)
	assert.Contains(t, err.Error(), "CyclicParent")
	assert.Contains(t, err.Error(), "a,b")
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}
