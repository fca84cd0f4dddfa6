package routing

import (
	"fmt"
	"strings"
)

// Intent is the best-effort category of a prompt. It only shapes the task
// template; the agent remains free to pick any capability.
type Intent string

const (
	IntentImage        Intent = "image"
	IntentPresentation Intent = "presentation"
	IntentWebsite      Intent = "website"
	IntentCode         Intent = "code"
	IntentText         Intent = "text"
)

type category struct {
	intent   Intent
	phrases  []string
	keywords []string
	actions  []string
}

// categories are listed in precedence order.
var categories = []category{
	{
		intent: IntentImage,
		phrases: []string{
			"generate image", "create image", "draw image", "make image",
			"generate picture", "create picture", "draw picture", "make picture",
			"generate photo", "create photo", "generate logo", "create logo",
			"generate illustration", "create illustration", "design image",
		},
		keywords: []string{"image", "picture", "photo", "logo", "illustration"},
		actions:  []string{"generate", "create", "draw", "make", "design"},
	},
	{
		intent: IntentPresentation,
		phrases: []string{
			"create presentation", "generate presentation", "make presentation",
			"create slides", "generate slides", "make slides", "create ppt",
			"generate ppt", "make ppt", "powerpoint", "power point",
		},
		keywords: []string{"presentation", "slides", "ppt"},
		actions:  []string{"create", "generate", "make"},
	},
	{
		intent: IntentWebsite,
		phrases: []string{
			"create website", "generate website", "make website", "build website",
			"create webpage", "generate webpage", "make webpage", "create landing page",
			"generate landing page", "make landing page",
		},
		keywords: []string{"website", "webpage", "landing page"},
		actions:  []string{"create", "generate", "make", "build"},
	},
	{
		intent: IntentCode,
		phrases: []string{
			"create python", "write python", "generate python", "make python",
			"python script", "python code", "python file", "python program",
			"write script", "create script", "write code", "create code",
			"execute python", "run python", "python function",
		},
		keywords: []string{"python"},
		actions:  []string{"create", "write", "generate", "make", "execute", "run"},
	},
}

// Classify maps a prompt to an intent. Categories are tried in precedence
// order; within a category a trigger phrase anywhere matches, as does a
// category keyword among the first three words combined with an action verb
// anywhere. Anything else is IntentText.
func Classify(prompt string) Intent {
	lowered := strings.ToLower(prompt)
	words := strings.Fields(lowered)
	lead := strings.Join(words[:min(3, len(words))], " ")

	for _, c := range categories {
		if containsAny(lowered, c.phrases) {
			return c.intent
		}
		if hasKeyword(lead, c.keywords) && containsAny(lowered, c.actions) {
			return c.intent
		}
	}

	// Code also matches on "python" as the opening word. The keyword rule
	// above already covers "python" next to an action.
	if len(words) > 0 && words[0] == "python" {
		return IntentCode
	}
	if strings.Contains(lowered, "python") && containsAny(lowered, categories[3].actions) {
		return IntentCode
	}
	return IntentText
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasKeyword reports whether a keyword appears as whole words in lead.
func hasKeyword(lead string, keywords []string) bool {
	padded := " " + lead + " "
	for _, k := range keywords {
		if strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}

// ParseIntent validates an explicit intent. "python" is accepted for IntentCode.
func ParseIntent(s string) (Intent, error) {
	switch in := Intent(strings.ToLower(strings.TrimSpace(s))); in {
	case IntentImage, IntentPresentation, IntentWebsite, IntentCode, IntentText:
		return in, nil
	case "python":
		return IntentCode, nil
	default:
		return "", fmt.Errorf("unknown intent %q", s)
	}
}

var taskTemplates = map[Intent]string{
	IntentCode: "You are a senior software engineer. Write or update the requested source files in the workspace\n" +
		"with the write_file and edit_file tools, and explain what the code does succinctly.\n\n" +
		"Task:\n%s",
	IntentPresentation: "Create a concise but informative presentation outline, then use the write_file tool\n" +
		"to store it as a Markdown slide deck under the workspace directory. Explain the slide strategy before calling the tool.\n\n" +
		"Topic:\n%s",
	IntentImage: "You can call the write_file tool to save an SVG image (filename ending with .svg).\n" +
		"Craft a vivid, detailed concept and save the resulting image under the workspace directory.\n" +
		"Describe the concept first, then trigger the tool call.\n\n" +
		"Image brief:\n%s",
	IntentWebsite: "Act as a full-stack developer. Produce the HTML/CSS/JS necessary for the requested experience.\n" +
		"Use the write_file tool to write the files under the workspace directory.\n\n" +
		"Specification:\n%s",
	IntentText: "Provide a thoughtful, well-structured response for the following request.\n\n%s",
}

// FormatTask wraps prompt in the instruction template for intent.
func FormatTask(prompt string, intent Intent) string {
	tmpl, ok := taskTemplates[intent]
	if !ok {
		tmpl = taskTemplates[IntentText]
	}
	return fmt.Sprintf(tmpl, prompt)
}

var fallbackSystemMessages = map[Intent]string{
	IntentCode:         "You are a Python expert. Provide clean, runnable Python code with brief explanations.",
	IntentPresentation: "You are a presentation expert. Provide a structured outline for slides with titles and bullet points.",
	IntentImage:        "You are an image generation expert. Describe the image concept clearly.",
	IntentWebsite:      "You are a web developer. Provide complete HTML/CSS/JS code.",
	IntentText:         "You are a helpful assistant. Provide clear, concise answers.",
}

// FallbackSystemMessage returns the system message used by the direct
// completion path for intent.
func FallbackSystemMessage(intent Intent) string {
	if msg, ok := fallbackSystemMessages[intent]; ok {
		return msg
	}
	return fallbackSystemMessages[IntentText]
}
