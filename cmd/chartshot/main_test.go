package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, parseSymbols(" eurusd;XAUUSD, eurusd\t"))
	assert.Empty(t, parseSymbols(" , ;"))
}
