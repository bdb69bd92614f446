package lock

import "sync"

// Status is the lifecycle state of a LockRequest (spec.md §3).
type Status uint8

const (
	StatusNew Status = iota
	StatusGranted
	StatusConverting
	StatusWaiting
)

func (s Status) String() string {
	switch s {
	case StatusGranted:
		return "Granted"
	case StatusConverting:
		return "Converting"
	case StatusWaiting:
		return "Waiting"
	default:
		return "New"
	}
}

// Notifier is the condition-variable-plus-predicate pattern spec.md §9
// prescribes in place of callbacks: the waiter holds Mu, rechecks Status
// on each wakeup, and never waits while holding a lock it has not
// accounted for.
type Notifier struct {
	Mu   sync.Mutex
	Cond *sync.Cond
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	n := &Notifier{}
	n.Cond = sync.NewCond(&n.Mu)
	return n
}

// Signal wakes every goroutine waiting on this Notifier. The caller must
// already have mutated the shared predicate (the request's Status) before
// calling Signal, typically while not holding n.Mu — Broadcast itself
// acquires nothing, so callers take n.Mu only around the predicate check.
func (n *Notifier) Signal() {
	n.Mu.Lock()
	n.Cond.Broadcast()
	n.Mu.Unlock()
}

// LockerID identifies the Locker that owns a LockRequest, for deadlock
// wait-for-graph traversal and administrative reporting. It is opaque to
// the lock package.
type LockerID uint64

// Request is a per-(locker,resource) record (spec.md §3 LockRequest).
// It is created on the first acquire for a (locker, resource) pair, has
// its RecursiveCount incremented on repeat acquires, and is destroyed
// when RecursiveCount reaches zero via Unlock.
type Request struct {
	Locker   LockerID
	Resource ResourceId

	// Mode is the currently granted (or requested, while Waiting/
	// Converting) mode.
	Mode Mode
	// ConvertMode holds the mode being converted *from* while Status ==
	// Converting, so the prior mode can still contribute to the
	// resource's granted-mode supremum until the conversion completes
	// (spec.md §4.1 convert, anti-starvation for the converter).
	ConvertMode Mode

	Status        Status
	RecursiveCount int

	// EnqueueAtFront bypasses FIFO ordering (spec.md §4.1, §5). No caller
	// in this module sets it.
	EnqueueAtFront bool
	// CompatibleFirst marks a front-of-queue waiter whose mode later
	// arrivals may be granted alongside, to avoid starving the queue
	// behind a single high-priority request (spec.md §4.1 step 3, S2).
	CompatibleFirst bool

	// Notify is signaled by the manager when this request transitions to
	// Granted. Deadlock and timeout are detected by the waiting Locker
	// itself, which re-checks Status on every wakeup; FailureReason is not
	// set anywhere in this module.
	Notify        *Notifier
	FailureReason error

	// Internal linkage: which LockHead this request currently sits on
	// (grant list or conflict queue), maintained by the manager.
	head *head
	elem listElem
}
