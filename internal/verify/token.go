package verify

import "crypto/rand"

const (
	verificationIDPrefix = "ver_"
	tokenAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength          = 16
)

// NewVerificationID returns a fresh id of the form ver_<16 alphanumerics>.
func NewVerificationID() string {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return verificationIDPrefix + string(buf)
}
