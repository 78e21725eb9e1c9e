package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatement_IsLowLevelFunction(t *testing.T) {
	assert.False(t, Statement{LHS: 1, Args: 2}.IsLowLevelFunction())
	assert.True(t, Statement{LHS: InvalidIdentifier, Args: LowLevelFunctionTag}.IsLowLevelFunction())
}

func TestStatement_String(t *testing.T) {
	assert.Equal(t, "Stmt(3<-2 args)", Statement{LHS: 3, Args: 2}.String())
	assert.Equal(t, "Stmt(llf)", Statement{Args: LowLevelFunctionTag}.String())
}

func TestMaxArguments(t *testing.T) {
	// The sentinel must stay outside the valid argument range.
	assert.Less(t, MaxArguments, int(LowLevelFunctionTag))
}
