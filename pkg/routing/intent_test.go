package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		prompt string
		want   Intent
	}{
		{"create presentation about cats", IntentPresentation},
		{"draw a picture of a sunset", IntentImage},
		{"what is the capital of France", IntentText},
		{"write a python function to sort a list", IntentCode},
		{"Generate Image of a fox", IntentImage},
		{"logo for my bakery, please design it", IntentImage},
		{"slides on climate change, make them short", IntentPresentation},
		{"I need a PowerPoint deck", IntentPresentation},
		{"build website for my band", IntentWebsite},
		{"landing page for an app, create it", IntentWebsite},
		{"python one-liner for fizzbuzz", IntentCode},
		{"can you run this in python for me", IntentCode},
		{"tell me about python snakes", IntentText},
		{"image of nothing", IntentText},
		{"", IntentText},
		{"   ", IntentText},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.prompt))
		})
	}
}

func TestClassify_Precedence(t *testing.T) {
	t.Run("image phrase beats website phrase", func(t *testing.T) {
		assert.Equal(t, IntentImage, Classify("create website with a generate image button"))
		assert.Equal(t, IntentImage, Classify("make website hero: create image of mountains"))
	})

	t.Run("earlier category keyword beats later phrase", func(t *testing.T) {
		assert.Equal(t, IntentImage, Classify("picture this: create website for my bakery"))
		assert.Equal(t, IntentImage, Classify("image resizer: write python script to create thumbnails"))
	})

	t.Run("later phrase wins without earlier match", func(t *testing.T) {
		assert.Equal(t, IntentCode, Classify("resizer for images: write python script"))
	})

	t.Run("keywords follow category order", func(t *testing.T) {
		assert.Equal(t, IntentImage, Classify("photo slides, create them"))
	})
}

func TestParseIntent(t *testing.T) {
	for _, in := range []string{"image", "presentation", "website", "code", "text"} {
		got, err := ParseIntent(in)
		require.NoError(t, err)
		assert.Equal(t, Intent(in), got)
	}

	got, err := ParseIntent(" Python ")
	require.NoError(t, err)
	assert.Equal(t, IntentCode, got)

	_, err = ParseIntent("video")
	assert.Error(t, err)
}

func TestFormatTask(t *testing.T) {
	for _, in := range []Intent{IntentImage, IntentPresentation, IntentWebsite, IntentCode} {
		task := FormatTask("the prompt", in)
		assert.Contains(t, task, "the prompt")
		assert.Contains(t, task, "write_file", in)
	}

	assert.Equal(t,
		"Provide a thoughtful, well-structured response for the following request.\n\nwhy is the sky blue",
		FormatTask("why is the sky blue", IntentText))
	assert.Equal(t, FormatTask("x", IntentText), FormatTask("x", Intent("unknown")))
	assert.Contains(t, FormatTask("100% sure", IntentText), "100% sure")
}

func TestFallbackSystemMessage(t *testing.T) {
	assert.Contains(t, FallbackSystemMessage(IntentCode), "Python expert")
	assert.Contains(t, FallbackSystemMessage(IntentWebsite), "HTML/CSS/JS")
	assert.Equal(t, FallbackSystemMessage(IntentText), FallbackSystemMessage(Intent("other")))
	for _, in := range []Intent{IntentImage, IntentPresentation, IntentWebsite, IntentCode} {
		assert.NotEqual(t, FormatTask("", in), FallbackSystemMessage(in))
	}
}
