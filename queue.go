package main

// trySend attempts a non-blocking push of payload onto ch. It reports
// whether the push succeeded. Unlike the teacher's trySend, this queue never
// blocks waiting on a timeout: a full channel means the peer is not keeping
// up, and the router's slow-consumer policy (slowconsumer.go) is the layer
// responsible for deciding what to do about that, not the send itself.
func trySend(ch chan []byte, payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case ch <- payload:
		return true
	default:
		return false
	}
}
