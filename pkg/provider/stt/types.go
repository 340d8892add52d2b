package stt

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of proper nouns that general models miss.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Eldrinax").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
