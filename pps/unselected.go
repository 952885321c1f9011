package pps

// unselected is the heap of packages awaiting a decision. The comparator is
// supplied by the solver: packages with fewer candidate versions sort first,
// then lexical order for determinism.
type unselected struct {
	sl  []PackageName
	cmp func(i, j int) bool
}

func (u unselected) Len() int {
	return len(u.sl)
}

func (u unselected) Less(i, j int) bool {
	return u.cmp(i, j)
}

func (u unselected) Swap(i, j int) {
	u.sl[i], u.sl[j] = u.sl[j], u.sl[i]
}

func (u *unselected) Push(x interface{}) {
	u.sl = append(u.sl, x.(PackageName))
}

func (u *unselected) Pop() (v interface{}) {
	v, u.sl = u.sl[len(u.sl)-1], u.sl[:len(u.sl)-1]
	return v
}

// remove drops an arbitrary occurrence of name from the queue. Splicing can
// leave the slice transiently out of heap order; that only perturbs which
// package is considered next, and identically so for identical inputs.
func (u *unselected) remove(name PackageName) {
	for k, pn := range u.sl {
		if pn == name {
			if k == len(u.sl)-1 {
				u.sl = u.sl[:len(u.sl)-1]
			} else {
				u.sl = append(u.sl[:k], u.sl[k+1:]...)
			}
			return
		}
	}
}
