package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

var (
	NanoidSize     = 32
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// References are read aloud over the phone, so no lookalike characters.
	referenceAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitAlphabet     = "0123456789"
)

func NanoID() string {
	return NanoIDSize(NanoidSize)
}

func NanoIDSize(size int) string {
	if size == 0 {
		size = NanoidSize
	}

	return gonanoid.MustGenerate(nanoidAlphabet, size)
}

// NumericCode returns a random code of size decimal digits.
func NumericCode(size int) (string, error) {
	return gonanoid.Generate(digitAlphabet, size)
}

// Reference returns a short display-safe correlation id.
func Reference() string {
	return gonanoid.MustGenerate(referenceAlphabet, 8)
}
