package models

import "strings"

// keySeparator разделяет entityType и entityID в ключе хранилища
const keySeparator = ":"

// DraftMetadata описывает автора и момент записи снапшота.
type DraftMetadata struct {
	ClientID  string `json:"clientId"`  // ClientID идентификатор клиента (или сервера), записавшего версию
	UpdatedAt int64  `json:"updatedAt"` // UpdatedAt время записи в epoch миллисекундах
	Version   int64  `json:"version"`   // Version монотонно неубывающая версия сущности
}

// DraftSnapshot is the locally stored state of one drafted entity.
// Exactly one snapshot exists per (EntityType, EntityID) in a store.
type DraftSnapshot[T any] struct {
	Data       T             `json:"data"`       // Data полезная нагрузка (JSON-объект)
	EntityType string        `json:"entityType"` // EntityType тип сущности
	EntityID   string        `json:"entityId"`   // EntityID идентификатор сущности
	Metadata   DraftMetadata `json:"metadata"`   // Metadata автор, время и версия записи
	Dirty      bool          `json:"dirty"`      // Dirty true пока есть несинхронизированные локальные изменения
}

// Record is the default schemaless payload for drafts.
type Record = map[string]any

// Key returns the storage key of the snapshot.
func (s *DraftSnapshot[T]) Key() string {
	return EntityKey(s.EntityType, s.EntityID)
}

// Clone создает копию снапшота. Data копируется через полевое представление,
// поэтому изменения копии не затрагивают оригинал.
func (s *DraftSnapshot[T]) Clone() (*DraftSnapshot[T], error) {
	fields, err := ToFields(s.Data)
	if err != nil {
		return nil, err
	}
	data, err := FromFields[T](fields)
	if err != nil {
		return nil, err
	}

	return &DraftSnapshot[T]{
		Data:       data,
		EntityType: s.EntityType,
		EntityID:   s.EntityID,
		Metadata:   s.Metadata,
		Dirty:      s.Dirty,
	}, nil
}

// EntityKey builds the storage key "entityType:entityID".
func EntityKey(entityType, entityID string) string {
	return entityType + keySeparator + entityID
}

// TypePrefix returns the key prefix shared by every snapshot of entityType.
func TypePrefix(entityType string) string {
	return entityType + keySeparator
}

// SplitEntityKey разбирает ключ на entityType и entityID.
// entityType не может содержать разделитель, поэтому режем по первому вхождению.
func SplitEntityKey(key string) (entityType, entityID string, ok bool) {
	entityType, entityID, ok = strings.Cut(key, keySeparator)
	if !ok || entityType == "" || entityID == "" {
		return "", "", false
	}
	return entityType, entityID, true
}
