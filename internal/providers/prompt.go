package providers

import (
	"strings"

	"translarr/internal/language"
)

// DefaultChatPrompt is the stock system prompt for chat providers. Operators
// override it through the ai_prompt setting; {sourceLanguage} and
// {targetLanguage} are substituted per request.
const DefaultChatPrompt = "You are a professional subtitle translator. Translate each line " +
	"from {sourceLanguage} to {targetLanguage}. Keep the meaning, tone, and approximate " +
	"length of every line. Never merge or split lines. Never add commentary."

const batchInstructions = "You will receive a JSON object with a \"lines\" array; each entry " +
	"has a numeric \"position\" and a \"text\". Optional \"context_before\" and " +
	"\"context_after\" arrays are surrounding dialogue for reference only: do not translate " +
	"them and do not include them in the output. Respond with JSON only, shaped as " +
	"{\"translations\":[{\"position\":<number>,\"text\":\"<translated>\"}]}. Keep every " +
	"position exactly as given."

// RenderPrompt substitutes the language placeholders in a prompt template.
// Languages are substituted as display names so the model sees "Romanian",
// not "ro".
func RenderPrompt(template, sourceLang, targetLang string) string {
	prompt := strings.TrimSpace(template)
	if prompt == "" {
		prompt = DefaultChatPrompt
	}
	prompt = strings.ReplaceAll(prompt, "{sourceLanguage}", language.DisplayName(sourceLang))
	prompt = strings.ReplaceAll(prompt, "{targetLanguage}", language.DisplayName(targetLang))
	return prompt
}
