package disk

import "container/list"

// recency orders entry names from most to least recently written.
// It is not safe for concurrent use; the owning Cache serializes access.
type recency struct {
	order *list.List
	elems map[string]*list.Element
}

// newRecency builds an index from names ordered newest first.
func newRecency(names []string) *recency {
	r := &recency{
		order: list.New(),
		elems: make(map[string]*list.Element, len(names)),
	}
	for _, name := range names {
		if _, ok := r.elems[name]; ok {
			continue
		}
		r.elems[name] = r.order.PushBack(name)
	}
	return r
}

// touch marks name as the most recently written entry, adding it if absent.
func (r *recency) touch(name string) {
	if elem, ok := r.elems[name]; ok {
		r.order.MoveToFront(elem)
		return
	}
	r.elems[name] = r.order.PushFront(name)
}

// remove drops name and reports whether it was present.
func (r *recency) remove(name string) bool {
	elem, ok := r.elems[name]
	if !ok {
		return false
	}
	r.order.Remove(elem)
	delete(r.elems, name)
	return true
}

func (r *recency) contains(name string) bool {
	_, ok := r.elems[name]
	return ok
}

func (r *recency) len() int {
	return r.order.Len()
}

// oldest returns the least recently written entry.
func (r *recency) oldest() (string, bool) {
	back := r.order.Back()
	if back == nil {
		return "", false
	}
	return back.Value.(string), true
}

// names returns every entry, newest first.
func (r *recency) names() []string {
	out := make([]string, 0, r.order.Len())
	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(string))
	}
	return out
}
