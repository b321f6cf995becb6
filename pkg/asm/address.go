package asm

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a label's stable path: ":"-joined non-negative integer tags,
// e.g. "0:1:3". Callers treat it as opaque.
type Address string

// Fixed top-level labels.
const (
	RootAddress     Address = "0"   // document root
	AssemblyAddress Address = "0:1" // user-visible hierarchy
	LibraryAddress  Address = "0:2" // part-labels
)

// firstUserTag is the first tag handed out under the document root.
const firstUserTag = 3

// ParseAddress validates s as a label address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || strconv.Itoa(n) != part {
			return "", fmt.Errorf("malformed address %q", s)
		}
	}
	return Address(s), nil
}

// Child returns the address of the child with the given tag.
func (a Address) Child(tag int) Address {
	return Address(string(a) + ":" + strconv.Itoa(tag))
}

// Parent returns the parent address. The root has none.
func (a Address) Parent() (Address, bool) {
	i := strings.LastIndexByte(string(a), ':')
	if i < 0 {
		return "", false
	}
	return a[:i], true
}

// Tag returns the last component.
func (a Address) Tag() int {
	s := string(a)
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	n, _ := strconv.Atoi(s)
	return n
}

// IsFixed reports whether a is one of the three fixed top labels.
func (a Address) IsFixed() bool {
	return a == RootAddress || a == AssemblyAddress || a == LibraryAddress
}

// IsUnder reports whether a lies strictly below anc.
func (a Address) IsUnder(anc Address) bool {
	return strings.HasPrefix(string(a), string(anc)+":")
}

func (a Address) String() string { return string(a) }
