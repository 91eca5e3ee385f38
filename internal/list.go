// Intrusive doubly-linked lists.
//
// A List never allocates: callers embed an Element in whatever struct
// they want queued (Task.StateQueueLink) and pass its address around.
// An Element belongs to at most one List at a time; nothing here
// checks that invariant, the caller (the scheduler) is responsible for
// it.

package lazuli_internal

// Element is the intrusive link embedded in queued structures. Value
// holds a back-reference to the owning struct so a list traversal can
// recover it without the C original's container_of trick.
type Element struct {
	prev, next *Element
	Value      any
}

// List is the head of a doubly-linked list of Elements.
type List struct {
	first, last *Element
}

// failOnNil panics (subject to the CheckNullParametersInLists config
// switch) when any of the given pointers is nil. List operations are
// only ever reached from scheduler/mutex code already running with
// "interrupts disabled", so a violation here is always kernel-context
// misuse (§7), hence a straight Panic rather than a task abort.
func failOnNil(anyNil bool) {
	if anyNil && CheckNullParametersInLists {
		Panic("nil argument to list operation")
	}
}

// Append adds item at the tail of the list. O(1).
func Append(list *List, item *Element) {
	failOnNil(list == nil || item == nil)

	item.next = nil

	if list.first == nil {
		item.prev = nil
		list.first = item
		list.last = item
		return
	}

	item.prev = list.last
	list.last.next = item
	list.last = item
}

// Prepend adds item at the head of the list. O(1).
func Prepend(list *List, item *Element) {
	failOnNil(list == nil || item == nil)

	item.prev = nil

	if list.first == nil {
		item.next = nil
		list.first = item
		list.last = item
		return
	}

	item.next = list.first
	list.first.prev = item
	list.first = item
}

// InsertBefore inserts item immediately before anchor. The caller
// guarantees anchor is already a member of list; no check is done.
func InsertBefore(list *List, anchor, item *Element) {
	failOnNil(list == nil || anchor == nil || item == nil)

	if list.first == anchor {
		list.first = item
	}

	item.next = anchor
	item.prev = anchor.prev
	if anchor.prev != nil {
		anchor.prev.next = item
	}
	anchor.prev = item
}

// InsertAfter inserts item immediately after anchor. The caller
// guarantees anchor is already a member of list; no check is done.
func InsertAfter(list *List, anchor, item *Element) {
	failOnNil(list == nil || anchor == nil || item == nil)

	if list.last == anchor {
		list.last = item
	}

	item.prev = anchor
	item.next = anchor.next
	if anchor.next != nil {
		anchor.next.prev = item
	}
	anchor.next = item
}

// PickFirst detaches and returns the head of list, or nil if empty.
func PickFirst(list *List) *Element {
	failOnNil(list == nil)

	item := list.first
	if item == nil {
		return nil
	}

	list.first = item.next
	if list.first == nil {
		list.last = nil
	} else {
		list.first.prev = nil
	}

	item.next = nil
	item.prev = nil

	return item
}

// Remove detaches a known member of list and returns the element that
// preceded it (nil if item was the head), so a traversal can resume
// from the returned cursor.
func Remove(list *List, item *Element) *Element {
	failOnNil(list == nil || item == nil)

	previous := item.prev

	if item.prev == nil {
		list.first = item.next
	} else {
		item.prev.next = item.next
	}

	if item.next == nil {
		list.last = item.prev
	} else {
		item.next.prev = item.prev
	}

	item.prev = nil
	item.next = nil

	return previous
}

// AppendList splices src onto the tail of dst, leaving src empty.
func AppendList(dst, src *List) {
	failOnNil(dst == nil || src == nil)

	if src.first == nil {
		return
	}

	if dst.first == nil {
		dst.first = src.first
	} else {
		dst.last.next = src.first
		src.first.prev = dst.last
	}

	dst.last = src.last

	src.first = nil
	src.last = nil
}

// PointFirst returns the head of list without detaching it.
func PointFirst(list *List) *Element {
	failOnNil(list == nil)
	return list.first
}

// PointElementAt returns the i-th element (0-based) of list, or nil if
// out of range.
func PointElementAt(list *List, index int) *Element {
	failOnNil(list == nil)

	i := 0
	for e := list.first; e != nil; e = e.next {
		if i == index {
			return e
		}
		i++
	}

	return nil
}

// IsEmpty reports whether list has no elements.
func IsEmpty(list *List) bool {
	failOnNil(list == nil)
	return list.first == nil && list.last == nil
}

// ForEach visits every element of list, head to tail, calling fn on
// each. Iteration stops early if fn returns false. fn must not mutate
// list; use RemovableForEach for that.
func ForEach(list *List, fn func(*Element) bool) {
	for e := list.first; e != nil; e = e.next {
		if !fn(e) {
			return
		}
	}
}

// RemovableForEach visits every element of list, head to tail. fn is
// called with the current element and must return the cursor to
// resume the traversal from: the element itself when it did not
// remove anything, or the value returned by Remove(list, element)
// when it did. This mirrors the original Lazuli
// List_RemovableForEach/List_Remove pairing and is the only traversal
// safe against in-place removal of the current element.
func RemovableForEach(list *List, fn func(*Element) *Element) {
	e := list.first
	for e != nil {
		cursor := fn(e)
		if cursor == nil {
			e = list.first
		} else {
			e = cursor.next
		}
	}
}
