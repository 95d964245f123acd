package metadata

import "time"

// Audit is an immutable snapshot of an entity taken when it was created or
// when a draft was committed onto it.
type Audit struct {
	ID        string    `json:"id"`
	EntityID  int64     `json:"entity_id"`
	ClassName string    `json:"class_name"`
	Owner     string    `json:"owner"`
	Revision  string    `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	Schema    Schema    `json:"schema"`
}
