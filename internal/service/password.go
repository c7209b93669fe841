package service

import (
	"crypto/rand"
	"math/big"
)

const (
	tempPasswordLength = 12

	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "@#$%&*!?"
)

// PasswordPolicy produces temporary passwords for enrolled students.  With
// Fixed set every student gets that value, which is only meant for demos
// and local development.
type PasswordPolicy struct {
	Fixed string
}

// Generate returns a password that satisfies Keycloak's default complexity
// rules: 12 characters with at least one upper, lower, digit and symbol.
func (p PasswordPolicy) Generate() (string, error) {
	if p.Fixed != "" {
		return p.Fixed, nil
	}
	classes := []string{upperChars, lowerChars, digitChars, symbolChars}
	all := upperChars + lowerChars + digitChars + symbolChars

	out := make([]byte, 0, tempPasswordLength)
	for _, set := range classes {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < tempPasswordLength {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	// shuffle so the class order is not predictable
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
