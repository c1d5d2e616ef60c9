package prompt

import (
	"strings"
)

const defaultCustomStyle = "unique style"

// StopSequences end a chat-template completion
var StopSequences = []string{"<|end|>", "<|user|>", "<|assistant|>"}

// Instruction returns the instruction for a task. Unknown tasks use the
// Rewrite instruction. The tone line is only added for Rewrite.
func Instruction(task Task, tone Tone, customTone string) string {
	instruction, ok := tables.Instructions[string(task)]
	if !ok {
		task = Rewrite
		instruction = tables.Instructions[string(Rewrite)]
	}
	if task != Rewrite {
		return instruction
	}
	return strings.Replace(instruction, "{tone}", "\n"+toneGuideline(tone, customTone), 1)
}

func toneGuideline(tone Tone, customTone string) string {
	if tone == Custom {
		style := strings.TrimSpace(customTone)
		if style == "" {
			style = defaultCustomStyle
		}
		return strings.Replace(tables.Tones[string(Custom)], "{style}", style, 1)
	}
	if g, ok := tables.Tones[string(tone)]; ok {
		return g
	}
	return tables.Tones[string(Neutral)]
}

// Build constructs the few-shot completion prompt for a task. The result
// always ends with "OUTPUT:". A Custom-tone rewrite carries no examples.
func Build(task Task, tone Tone, customTone, text string) string {
	instruction := Instruction(task, tone, customTone)

	var b strings.Builder
	if !(task == Rewrite && tone == Custom) {
		for i, ex := range Examples(task, tone) {
			if i > 0 {
				b.WriteString("\n\n")
			}
			writeBlock(&b, instruction, ex.Input)
			b.WriteString(" ")
			b.WriteString(ex.Output)
		}
		b.WriteString("\n\n")
	}
	writeBlock(&b, instruction, text)
	return b.String()
}

// BuildRequest is Build for a Request
func BuildRequest(req Request) string {
	return Build(req.Task, req.Tone, req.CustomTone, req.Text)
}

func writeBlock(b *strings.Builder, instruction, input string) {
	b.WriteString(instruction)
	b.WriteString("\nINPUT: ")
	b.WriteString(input)
	b.WriteString("\nOUTPUT:")
}

// ServerPrompt returns the chat-template prompt the inference server sends
// to its model for a request. Text and style are trimmed.
func ServerPrompt(req Request) string {
	text := strings.TrimSpace(req.Text)
	tone := Tone(strings.TrimSpace(string(req.Tone)))

	var tmpl string
	style := ""
	switch req.Task {
	case Summarize, Proofread, Paraphrase:
		tmpl = tables.Server.Tasks[string(req.Task)]
	case Rewrite:
		custom := strings.TrimSpace(req.CustomTone)
		switch {
		case tone == Custom && custom != "":
			tmpl, style = tables.Server.Fallback.Custom, custom
		case tables.Server.Rewrite[string(tone)] != "":
			tmpl = tables.Server.Rewrite[string(tone)]
		default:
			tmpl, style = tables.Server.Fallback.Open, string(tone)
		}
	default:
		tmpl = tables.Server.Fallback.Generic
	}

	r := strings.NewReplacer("{style}", style, "{text}", text)
	return r.Replace(tmpl)
}

// CleanOutput trims model output and cuts it at the first stop sequence or
// extra separator found, applied in order.
func CleanOutput(raw string, extra ...string) string {
	result := strings.TrimSpace(raw)
	seps := append(append([]string{}, StopSequences...), extra...)
	for _, seq := range seps {
		if i := strings.Index(result, seq); i >= 0 {
			result = strings.TrimSpace(result[:i])
		}
	}
	return result
}

// GenerateSeparators are the extra cut points applied to /generate output
var GenerateSeparators = []string{"\n\n\n", "Summary:\n\n"}
