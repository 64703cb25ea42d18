package config

// ============================================================================
// DATABASE BACKENDS
// ============================================================================

// Kind identifies a supported database backend.
type Kind string

const (
	KindBigQuery   Kind = "bigquery"
	KindDuckDB     Kind = "duckdb"
	KindDatabricks Kind = "databricks"
	KindSnowflake  Kind = "snowflake"
	KindPostgres   Kind = "postgres"
)

// Backend describes the per-kind capabilities the harness cares about.
// Each supported kind implements the full method set; optional behavior is
// expressed through capability methods with no-op defaults rather than
// runtime probing.
type Backend interface {
	Kind() Kind
	// TracksBytesScanned reports whether execution results for this backend
	// carry a bytes_processed cost metric.
	TracksBytesScanned() bool
}

// baseBackend supplies the fallback behavior shared by all kinds.
type baseBackend struct{}

func (baseBackend) TracksBytesScanned() bool { return false }

type bigqueryBackend struct{ baseBackend }

func (bigqueryBackend) Kind() Kind { return KindBigQuery }

// BigQuery bills by data scanned and reports it on every query.
func (bigqueryBackend) TracksBytesScanned() bool { return true }

type duckdbBackend struct{ baseBackend }

func (duckdbBackend) Kind() Kind { return KindDuckDB }

type databricksBackend struct{ baseBackend }

func (databricksBackend) Kind() Kind { return KindDatabricks }

type snowflakeBackend struct{ baseBackend }

func (snowflakeBackend) Kind() Kind { return KindSnowflake }

type postgresBackend struct{ baseBackend }

func (postgresBackend) Kind() Kind { return KindPostgres }

var backends = map[Kind]Backend{
	KindBigQuery:   bigqueryBackend{},
	KindDuckDB:     duckdbBackend{},
	KindDatabricks: databricksBackend{},
	KindSnowflake:  snowflakeBackend{},
	KindPostgres:   postgresBackend{},
}

// BackendFor returns the capability set for kind and whether the kind is
// supported.
func BackendFor(kind Kind) (Backend, bool) {
	b, ok := backends[kind]
	return b, ok
}

// SupportedKinds lists the database kinds the harness understands, in a
// stable order for user-facing messages.
func SupportedKinds() []Kind {
	return []Kind{KindBigQuery, KindDuckDB, KindDatabricks, KindSnowflake, KindPostgres}
}
