package launcher

// discardWriter swallows application output when capture is disabled.
// exec.Cmd still needs somewhere to write.
type discardWriter struct{}

func (discardWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (discardWriter) Close() error {
	return nil
}

var discard = discardWriter{}
