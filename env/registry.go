package env

import (
	"sort"
)

func newRegistry() *registry {
	return &registry{
		xs: []*element{},
		mp: make(map[int64]*element),
	}
}

func (r *registry) Add(id int64) {
	r.Lock()
	defer r.Unlock()
	if e, ok := r.mp[id]; ok {
		e.n++
	} else {
		e := &element{n: 1, id: id}
		r.mp[id] = e
		r.xs = push(e, r.xs)
	}
}

func (r *registry) Del(id int64) {
	r.Lock()
	defer r.Unlock()
	if e, ok := r.mp[id]; ok {
		if e.n = e.n - 1; e.n == 0 {
			delete(r.mp, id)
			for len(r.xs) > 0 {
				if _, ok := r.mp[r.xs[0].id]; !ok {
					r.xs = r.xs[1:]
				} else {
					break
				}
			}
		}
	}
}

func (r *registry) Min() (int64, bool) {
	r.Lock()
	defer r.Unlock()
	if len(r.xs) > 0 {
		return r.xs[0].id, true
	}
	return 0, false
}

func push(x *element, xs []*element) []*element {
	i := sort.Search(len(xs), func(i int) bool { return xs[i].id >= x.id })
	xs = append(xs, &element{})
	copy(xs[i+1:], xs[i:])
	xs[i] = x
	return xs
}
