package ports

import "context"

// CheckpointStore persiste el progreso por (job, key) para que un batch
// interrumpido retome en vez de reempezar. Un checkpoint se escribe solo
// cuando su unidad de trabajo ya es durable aguas abajo.
type CheckpointStore interface {
	// Get devuelve el cursor guardado para un job/key, o "" si no hay.
	Get(ctx context.Context, job, key string) (string, error)

	// Put registra el cursor de un job/key.
	Put(ctx context.Context, job, key, cursor string) error

	// Delete limpia el checkpoint de un job/key (cuando una wallet se
	// reconstruye desde cero).
	Delete(ctx context.Context, job, key string) error

	Close() error
}
