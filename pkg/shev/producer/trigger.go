package producer

// Trigger is the per-loop manual wake primitive. Notify is non-blocking;
// a wake already pending coalesces with later ones.
type Trigger struct {
	ch chan struct{}
}

func newTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Notify wakes the owning loop if it is sleeping.
func (t *Trigger) Notify() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C returns the wake channel the loop selects on.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}
