package gbsip

import (
	"math/rand"
)

const randAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randAlphabet[rand.Intn(len(randAlphabet))]
	}
	return string(b)
}

// GenerateBranch returns a Via branch: the magic cookie plus 6 random
// characters.
func GenerateBranch() string {
	return BranchMagic + randString(6)
}

func generateTag() string {
	return randString(8)
}

func generateCallID() string {
	return randString(16)
}

func generateCSeq() uint32 {
	return uint32(rand.Intn(1000))
}

// GenerateSSRC returns a GB28181 realtime SSRC as a 10-digit decimal
// string: flag "0", a 5-char domain derived from the REGISTER request-URI
// user (chars 4..8), and 4 random digits.
func GenerateSSRC(registerURIUser string) string {
	domain := "00000"
	if len(registerURIUser) >= 8 {
		domain = registerURIUser[3:8]
	}

	return "0" + domain + fmt4Digits(rand.Intn(10000))
}

func fmt4Digits(v int) string {
	b := []byte{'0', '0', '0', '0'}
	for i := 3; i >= 0 && v > 0; i-- {
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return string(b)
}
