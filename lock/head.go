package lock

import "container/list"

// listElem aliases container/list.Element so Request doesn't need to
// import container/list directly.
type listElem = *list.Element

// head is the per-resource state owned by the Lock Manager (spec.md §3
// LockHead): a grant list of currently-Granted requests and a FIFO conflict
// queue of Waiting requests. The compatibleFirst flag is not kept here; it
// is read from each queued Request's CompatibleFirst field.
type head struct {
	resource ResourceId

	granted *list.List // of *Request, all Status == Granted
	waiting *list.List // of *Request, Status in {Waiting, Converting}
}

func newHead(id ResourceId) *head {
	return &head{resource: id, granted: list.New(), waiting: list.New()}
}

// grantedModes collects the Mode of every currently-Granted request,
// including the ConvertMode contribution of any request mid-conversion
// (spec.md §4.1 convert: "reserves the prior mode ... until conversion
// completes"), excluding excl itself so a converter being tested against
// the effective mode never sees its own reserved prior mode reflected
// back at it.
func (h *head) grantedModes(excl *Request) []Mode {
	modes := make([]Mode, 0, h.granted.Len())
	for e := h.granted.Front(); e != nil; e = e.Next() {
		r := e.Value.(*Request)
		if r == excl {
			continue
		}
		modes = append(modes, r.Mode)
	}
	for e := h.waiting.Front(); e != nil; e = e.Next() {
		r := e.Value.(*Request)
		if r == excl {
			continue
		}
		if r.Status == StatusConverting {
			modes = append(modes, r.ConvertMode)
		}
	}
	return modes
}

// effectiveMode is the supremum of every Granted (and in-flight
// Converting) mode — step 1 of the granting algorithm.
func (h *head) effectiveMode() Mode {
	return Supremum(h.grantedModes(nil))
}

// effectiveModeExcluding is effectiveMode with excl's own contribution
// (its Mode if Granted, its ConvertMode if Converting) left out, so a
// waiter can be tested against what everyone *else* holds.
func (h *head) effectiveModeExcluding(excl *Request) Mode {
	return Supremum(h.grantedModes(excl))
}

func (h *head) addGranted(r *Request) {
	r.Status = StatusGranted
	r.head = h
	r.elem = h.granted.PushBack(r)
}

func (h *head) removeGranted(r *Request) {
	if r.elem != nil {
		h.granted.Remove(r.elem)
		r.elem = nil
	}
}

func (h *head) enqueueWaiting(r *Request, atFront bool) {
	r.head = h
	if atFront {
		r.elem = h.waiting.PushFront(r)
	} else {
		r.elem = h.waiting.PushBack(r)
	}
}

func (h *head) removeWaiting(r *Request) {
	if r.elem != nil {
		h.waiting.Remove(r.elem)
		r.elem = nil
	}
}

// promote moves a waiting request to Granted, clearing a converter's
// reserved ConvertMode.
func (h *head) promote(r *Request) {
	h.removeWaiting(r)
	if r.Status == StatusConverting {
		// The converter already contributes via ConvertMode; replace it
		// with the new, stronger Mode now that conversion succeeds.
		r.ConvertMode = ModeNone
	}
	h.addGranted(r)
}

// reevaluate runs the granting algorithm (spec.md §4.1): walk the
// conflict queue from the front, granting every prefix of waiters
// compatible with the effective granted mode, stopping at the first
// incompatible waiter — except that if *that* waiter's CompatibleFirst
// flag is set, also grant any following waiters compatible with both the
// blocked waiter's mode and the current supremum (anti-starvation, S2).
// Returns the list of requests promoted to Granted this pass, so the
// caller can signal their Notifiers outside any lock head mutex.
func (h *head) reevaluate() []*Request {
	var promoted []*Request

	var blocked *Request

	for e := h.waiting.Front(); e != nil; {
		next := e.Next()
		r := e.Value.(*Request)

		// r's own reserved ConvertMode (if it is mid-conversion) must not
		// count against itself: a converter is tested against what every
		// *other* holder has, never its own prior mode.
		eff := h.effectiveModeExcluding(r)

		if blocked == nil {
			if CompatibleWith(r.Mode, eff) {
				h.promote(r)
				promoted = append(promoted, r)
			} else {
				blocked = r
				if !r.CompatibleFirst {
					break
				}
			}
		} else {
			// blocked.CompatibleFirst is set: grant further waiters
			// compatible with both blocked's mode and the current
			// supremum, without granting blocked itself.
			if CompatibleWith(r.Mode, blocked.Mode) && CompatibleWith(r.Mode, eff) {
				h.promote(r)
				promoted = append(promoted, r)
			}
		}

		e = next
	}

	return promoted
}
