package prompt

import (
	"fmt"

	"github.com/codexray/malapi-catalog/internal/domain/analysis"
)

const systemPrompt = `You are a malware reverse-engineering assistant. You are given the
decompiled C++ source of a single function recovered from a malware sample.
Answer in plain text, focused and technical. Never invent APIs that do not
appear in the code.`

// SystemPrompt returns the shared system message for all analysis types.
func SystemPrompt() string { return systemPrompt }

// UserPrompt builds the per-type user message around the decompiled source.
func UserPrompt(analysisType analysis.Type, sourceCode string) string {
	var task string
	switch analysisType {
	case analysis.TypeAttackScenario:
		task = "Describe the attack scenarios this function could support: what an operator gains from it, where it fits in an intrusion, and what it needs from the rest of the implant."
	case analysis.TypeMitigation:
		task = "List concrete detection and mitigation measures against this function: observable behaviors, telemetry to collect, and hardening that breaks it."
	default: // code_explanation
		task = "Explain what this function does step by step: its inputs, the APIs it relies on, its side effects, and its likely purpose inside the sample."
	}
	return fmt.Sprintf("%s\n\n```cpp\n%s\n```", task, sourceCode)
}
