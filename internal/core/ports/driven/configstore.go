package driven

// ConfigStore holds finrag's flat, dot-keyed settings ("llm.provider",
// "retrieval.top_k") and persists them. Typed getters return the zero
// value for a missing key or a value of another type; GetFloat widens
// integers so "answer.length_weight = 1" reads as 1.0.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Set stores and persists a value.
	Set(key string, value any) error

	Save() error
	Load() error

	// Path is where the store persists; empty for in-memory stores.
	Path() string
}
