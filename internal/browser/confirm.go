package browser

// pendingConfirm is the single shared confirm slot. The channel is buffered
// so resolving never blocks; a second concurrent request gets an immediately
// resolved false channel instead of queueing.
type pendingConfirm struct {
	side    Side
	message string
	danger  bool
	ch      chan bool
}

// ConfirmView is a read-only snapshot of the pending confirm prompt.
type ConfirmView struct {
	Side    Side
	Message string
	Danger  bool
}

func (pc *pendingConfirm) view() ConfirmView {
	return ConfirmView{Side: pc.side, Message: pc.message, Danger: pc.danger}
}

// resolvedFalse returns a channel that already carries a false answer.
func resolvedFalse() <-chan bool {
	ch := make(chan bool, 1)
	ch <- false
	return ch
}
