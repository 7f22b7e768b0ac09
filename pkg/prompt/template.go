package prompt

import (
	_ "embed"
	"strings"
)

// MaxInstructionLength は指示文の最大文字数（rune 数）です。
const MaxInstructionLength = 300

//go:embed default.md
var defaultInstruction string

// DefaultInstruction は既定の指示文を返します。
func DefaultInstruction() string {
	return strings.TrimSpace(defaultInstruction)
}
