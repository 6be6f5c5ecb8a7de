package ir

// Node looks up a node within a lambda's own body arena by id, mirroring
// IRProgram.Node for the nested TypedLambda node table (section 4.4).
func (l *TypedLambda) Node(id NodeID) *IRNode {
	if id < 0 || int(id) >= len(l.BodyNodes) {
		return nil
	}
	return &l.BodyNodes[id]
}

// Captures reports every outer name this lambda closes over, in no
// particular order (section 3.4, section 4.6). The DAG compiler wires
// capturedInputs from the HigherOrder node's CapturedInputs instead.
func (l *TypedLambda) Captures() []string {
	names := make([]string, 0, len(l.CapturedBindings))
	for name := range l.CapturedBindings {
		names = append(names, name)
	}
	return names
}
