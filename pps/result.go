package pps

import "bytes"

// Lock is the read side of a previous solution: the input digest it was
// computed from, and the packages it pinned.
type Lock interface {
	// InputsDigest returns the digest of the inputs the lock was solved
	// from.
	InputsDigest() []byte

	// Packages returns the pinned packages.
	Packages() []LockedPackage
}

// Solution is a complete, consistent resolution. It is itself a Lock, so it
// can be persisted and fed back into a later solve.
type Solution interface {
	Lock

	// Attempts reports how many candidate checks the solve performed.
	Attempts() int
}

type solution struct {
	p   []LockedPackage
	hd  []byte
	att int
}

func (r solution) Packages() []LockedPackage {
	return r.p
}

func (r solution) InputsDigest() []byte {
	return r.hd
}

func (r solution) Attempts() int {
	return r.att
}

// LockedPackage is one pinned package in a lock: an exact version from an
// exact source, the packages it depends on, and the workspace members that
// (transitively) require it.
type LockedPackage struct {
	id      ProjectIdentifier
	v       Version
	deps    []PackageName
	members []string
}

func NewLockedPackage(id ProjectIdentifier, v Version, deps []PackageName, members []string) LockedPackage {
	return LockedPackage{
		id:      id,
		v:       v,
		deps:    deps,
		members: members,
	}
}

func (lp LockedPackage) Ident() ProjectIdentifier {
	return lp.id
}

func (lp LockedPackage) Version() Version {
	return lp.v
}

func (lp LockedPackage) Dependencies() []PackageName {
	return lp.deps
}

func (lp LockedPackage) Members() []string {
	return lp.members
}

// Eq reports whether two locked packages pin the same version from the same
// source with the same dependency closure.
func (lp LockedPackage) Eq(o LockedPackage) bool {
	if lp.id != o.id {
		return false
	}
	if (lp.v == nil) != (o.v == nil) {
		return false
	}
	if lp.v != nil && lp.v.Compare(o.v) != 0 {
		return false
	}
	if len(lp.deps) != len(o.deps) {
		return false
	}
	for i, d := range lp.deps {
		if o.deps[i] != d {
			return false
		}
	}
	return true
}

// LocksAreEquivalent reports whether two locks pin identical package sets
// from identical inputs.
func LocksAreEquivalent(l1, l2 Lock) bool {
	if l1 == nil || l2 == nil {
		return l1 == l2
	}
	if !bytes.Equal(l1.InputsDigest(), l2.InputsDigest()) {
		return false
	}

	p1, p2 := l1.Packages(), l2.Packages()
	if len(p1) != len(p2) {
		return false
	}
	for i, lp := range p1 {
		if !lp.Eq(p2[i]) {
			return false
		}
	}
	return true
}
