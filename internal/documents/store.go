// Package documents stores the named YAML documents that drive moderation
// (the rule list and the tier table). Every write keeps the previous content
// as a single backup that can be restored.
package documents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrNoBackup    = errors.New("no backup available")
	ErrInvalidName = errors.New("invalid document name")
)

type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Restore(ctx context.Context, name string) error
	HasBackup(ctx context.Context, name string) (bool, error)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
