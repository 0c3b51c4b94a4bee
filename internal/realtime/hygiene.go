package realtime

import "strings"

const repeatRequestText = "I'm sorry, I didn't quite catch that. Could you please repeat what you said?"

// applySSMLFormatting wraps plain text for fast en-US speech unless it
// already carries SSML tags.
func applySSMLFormatting(text string) string {
	if text == "" || strings.Contains(text, "<speak>") {
		return text
	}
	return `<speak><lang xml:lang="en-US"><prosody rate="fast">` + text + `</prosody></lang></speak>`
}

// isValidContent filters transcription noise. Deliberately permissive: only
// very short fragments, a handful of filler words, and single-character
// repetitions are dropped.
func isValidContent(content string) bool {
	content = strings.ToLower(strings.TrimSpace(content))
	if len(content) < 3 {
		return false
	}

	switch content {
	case "hmm", "um", "uh", "mm", "hm":
		return false
	}

	// Repetitive strings like "mmmm" or "hhhh"
	allSame := true
	for i := 1; i < len(content); i++ {
		if content[i] != content[0] {
			allSame = false
			break
		}
	}
	return !allSame
}

// isLowConfidenceInput decides whether to ask the user to repeat instead of
// relaying the transcription.
func isLowConfidenceInput(content string, confidence float64) bool {
	if confidence < 0.35 {
		return true
	}
	if confidence < 0.5 && len(content) < 8 {
		return true
	}

	lower := strings.ToLower(content)
	for _, marker := range []string{"repeat", "again", "didn't hear", "say that again"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
