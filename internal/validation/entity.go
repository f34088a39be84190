package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// EntityTypePattern определяет допустимый формат типа сущности
// Латинские буквы, цифры, '_', '-', '.'; разделитель ключа ':' запрещен
var EntityTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

const (
	// MaxEntityIDLen максимальная длина идентификатора сущности
	MaxEntityIDLen = 256
	// MaxClientIDLen максимальная длина идентификатора клиента
	MaxClientIDLen = 128
)

// ErrInvalidIdentity is returned for every identity that cannot form a storage key.
var ErrInvalidIdentity = errors.New("invalid identity")

// ValidateEntityType проверяет тип сущности.
// Тип становится префиксом ключа, поэтому ':' в нем недопустим.
func ValidateEntityType(entityType string) error {
	if entityType == "" {
		return fmt.Errorf("%w: entity type cannot be empty", ErrInvalidIdentity)
	}

	if !EntityTypePattern.MatchString(entityType) {
		return fmt.Errorf("%w: entity type %q can only contain letters, numbers, '_', '-' and '.' (max 64)", ErrInvalidIdentity, entityType)
	}

	return nil
}

// ValidateEntityID проверяет идентификатор сущности
func ValidateEntityID(entityID string) error {
	if strings.TrimSpace(entityID) == "" {
		return fmt.Errorf("%w: entity id cannot be empty", ErrInvalidIdentity)
	}

	if len(entityID) > MaxEntityIDLen {
		return fmt.Errorf("%w: entity id must not exceed %d characters", ErrInvalidIdentity, MaxEntityIDLen)
	}

	return nil
}

// ValidateEntity validates both halves of an entity key.
func ValidateEntity(entityType, entityID string) error {
	if err := ValidateEntityType(entityType); err != nil {
		return err
	}
	return ValidateEntityID(entityID)
}

// ValidateClientID проверяет идентификатор клиента, которым штампуются локальные записи
func ValidateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id cannot be empty", ErrInvalidIdentity)
	}

	if len(clientID) > MaxClientIDLen {
		return fmt.Errorf("%w: client id must not exceed %d characters", ErrInvalidIdentity, MaxClientIDLen)
	}

	return nil
}
