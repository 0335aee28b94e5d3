package domain

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Artifact is a compiled, deployable contract. It is read-only once loaded.
type Artifact struct {
	Name     string  `json:"name"`
	Path     string  `json:"path,omitempty"`
	Bytecode []byte  `json:"-"`
	ABI      abi.ABI `json:"-"`
}

// ConstructorInputs returns the constructor parameters, empty when the
// artifact has no explicit constructor.
func (a *Artifact) ConstructorInputs() abi.Arguments {
	return a.ABI.Constructor.Inputs
}

// Deployable reports whether the artifact carries creation bytecode.
func (a *Artifact) Deployable() bool {
	return a != nil && len(a.Bytecode) > 0
}
