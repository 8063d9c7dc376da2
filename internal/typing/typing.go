package typing

// Unit is the empty result of side-effecting pipeline steps.
type Unit = struct{}
