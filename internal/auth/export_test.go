package auth

import "time"

// SetNow overrides the clock used for issuing and validating tokens.
func (s *JWTService) SetNow(now func() time.Time) {
	s.now = now
}
