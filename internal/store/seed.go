package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SeedCharactersFromFile reads a JSON array of characters and inserts them in
// one transaction, attributed to generatedBy. Entries without a name or
// planet are skipped. It returns the number of characters inserted.
func (s *Store) SeedCharactersFromFile(ctx context.Context, filePath string, generatedBy int64) (int, error) {
	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file %s: %w", filePath, err)
	}

	var chars []Character
	if err := json.Unmarshal(contentBytes, &chars); err != nil {
		return 0, fmt.Errorf("failed to parse seed file %s: %w", filePath, err)
	}
	if len(chars) == 0 {
		s.log.Warn("seed file contains no characters")
		return 0, nil
	}

	count := 0
	err = s.InTx(ctx, func(ctx context.Context, repos Repos) error {
		for i := range chars {
			c := chars[i]
			if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.PlanetName) == "" {
				s.log.WithField("index", i).Warn("skipping seed entry without name or planet")
				continue
			}
			c.ID = 0
			c.GeneratedBy = generatedBy
			if _, err := repos.Characters().Create(ctx, &c); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithField("count", count).Info("seeded characters")
	return count, nil
}

// EnsureAdmin returns the user with the given email, creating it with the
// admin role when absent.
func (s *Store) EnsureAdmin(ctx context.Context, email string) (*User, error) {
	u, err := s.UserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	username := strings.SplitN(email, "@", 2)[0]
	return s.Users().Create(ctx, &User{Username: username, Email: email, Role: RoleAdmin, Status: StatusActive})
}
