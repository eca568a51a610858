package providers

import "golang.org/x/oauth2"

// PKCEPair represents the verifier/challenge material required for PKCE flows.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE produces a PKCE verifier and associated S256 challenge.
func GeneratePKCE() (PKCEPair, error) {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: S256Challenge(verifier),
	}, nil
}

// S256Challenge derives the code_challenge for verifier.
func S256Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
