//go:build tools
// +build tools

// Package tools pins the code generators run through go generate (mockgen).
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
