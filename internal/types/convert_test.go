package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInt64(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
	}{
		{name: "int64", input: int64(42), expected: 42},
		{name: "int", input: 100, expected: 100},
		{name: "int32", input: int32(200), expected: 200},
		{name: "uint32", input: uint32(7), expected: 7},
		{name: "uint64", input: uint64(8), expected: 8},
		{name: "float64 truncates", input: 3.9, expected: 3},
		{name: "bytes", input: []byte("123"), expected: 123},
		{name: "string", input: "55", expected: 55},
		{name: "non-numeric string", input: "abc", expected: 0},
		{name: "nil", input: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToInt64(tt.input))
		})
	}
}

func TestToText(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{name: "nil is empty", input: nil, expected: ""},
		{name: "string", input: "00:01:30.000", expected: "00:01:30.000"},
		{name: "bytes", input: []byte("2.5"), expected: "2.5"},
		{name: "integer", input: int64(90), expected: "90"},
		{name: "int", input: 12, expected: "12"},
		{name: "real", input: 1.25, expected: "1.25"},
		{name: "bool", input: true, expected: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToText(tt.input))
		})
	}
}
