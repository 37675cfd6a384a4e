package storage

// Reporter recibe las fallas del backend durable. El engine trata toda
// falla de storage como "entry ausente" y sigue; el Reporter existe para
// que esa política sea observable (logs, métricas, tests) sin capturar
// output de log.
type Reporter func(op, key string, err error)

// NopReporter descarta las fallas.
func NopReporter(op, key string, err error) {}
