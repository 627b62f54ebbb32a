package llm

// FallbackChain is an ordered list of model identifiers tried in sequence
// after a call failure.
type FallbackChain []string

// Next returns the model to try after current. A current model not present in
// the chain means the chain has not been entered yet, so the first entry is
// returned. At the end of the chain, or for an empty chain, ok is false.
func (c FallbackChain) Next(current string) (string, bool) {
	if len(c) == 0 {
		return "", false
	}

	for i, model := range c {
		if model == current {
			if i+1 < len(c) {
				return c[i+1], true
			}
			return "", false
		}
	}
	return c[0], true
}

// Contains reports whether model is part of the chain.
func (c FallbackChain) Contains(model string) bool {
	for _, entry := range c {
		if entry == model {
			return true
		}
	}
	return false
}
