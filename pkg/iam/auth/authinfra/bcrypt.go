package authinfra

import (
	"github.com/senderpro/senderpro/pkg/iam/auth"
	"golang.org/x/crypto/bcrypt"
)

// BcryptPasswordService verifies passwords against bcrypt hashes produced by
// the user-management side.
type BcryptPasswordService struct {
	cost int
}

// NewBcryptPasswordService creates the service. The cost only matters for
// Hash, kept for completeness; Verify reads the cost out of the hash itself.
func NewBcryptPasswordService(cost int) *BcryptPasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordService{cost: cost}
}

// Verify compares a stored hash with a plaintext candidate.
func (s *BcryptPasswordService) Verify(hashedPassword, plainPassword string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword)); err != nil {
		return auth.ErrInvalidCredential()
	}
	return nil
}

// Hash produces a bcrypt hash at the configured cost.
func (s *BcryptPasswordService) Hash(plainPassword string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainPassword), s.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
