// Package emotion maps facial emotion labels to music targets.
package emotion

import "strings"

// Emotion is one of the fixed labels produced by the face classifier.
type Emotion string

// Known emotions.
const (
	Angry    Emotion = "angry"
	Disgust  Emotion = "disgust"
	Fear     Emotion = "fear"
	Happy    Emotion = "happy"
	Sad      Emotion = "sad"
	Surprise Emotion = "surprise"
	Neutral  Emotion = "neutral"
)

// All lists the known emotions in canonical order.
var All = []Emotion{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

// Parse returns the emotion for label, ignoring case and surrounding space.
// The second return value is false if the label is not a known emotion.
func Parse(label string) (Emotion, bool) {
	e := Emotion(strings.ToLower(strings.TrimSpace(label)))
	for _, known := range All {
		if e == known {
			return e, true
		}
	}
	return "", false
}

// Normalize returns the emotion for label, or Neutral if the label is unknown.
func Normalize(label string) Emotion {
	if e, ok := Parse(label); ok {
		return e
	}
	return Neutral
}

// Valid reports whether e is one of the known emotions.
func (e Emotion) Valid() bool {
	for _, known := range All {
		if e == known {
			return true
		}
	}
	return false
}

func (e Emotion) String() string {
	return string(e)
}
