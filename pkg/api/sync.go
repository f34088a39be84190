package api

// Metadata описывает автора и версию снапшота на проводе
type Metadata struct {
	ClientID  string `json:"clientId"`
	UpdatedAt int64  `json:"updatedAt"` // epoch миллисекунды
	Version   int64  `json:"version"`
}

// SyncSnapshot представляет снапшот одной сущности для транспорта.
// Флага dirty нет: грязность существует только локально.
type SyncSnapshot[T any] struct {
	Data       T        `json:"data"`
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	Metadata   Metadata `json:"metadata"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
