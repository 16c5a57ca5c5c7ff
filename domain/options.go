package domain

// StoreOption configures store behavior through the functional options
// pattern.
type StoreOption func(*StoreOptions)

// StoreOptions contains parameters for customizing a store and the tables
// it creates.
type StoreOptions struct {
	// Comparer orders and compares document values.
	Comparer Comparer
	// Hasher hashes grouping keys and index key tuples.
	Hasher Hasher
	// Decoder converts result documents into user values.
	Decoder Decoder
	// DocumentFactory constructs documents from user values.
	DocumentFactory DocumentFactory
	// PathNavigator parses and evaluates DDL-notation paths.
	PathNavigator PathNavigator
	// Parser parses query text.
	Parser Parser
	// Planner plans parsed queries.
	Planner Planner
	// Executor runs plans.
	Executor Executor
	// ReadUnits caps read operations per second per table. Zero disables
	// throttling.
	ReadUnits int
	// WriteUnits caps write operations per second per table. Zero
	// disables throttling.
	WriteUnits int
	// BuildWorkers sets the worker pool size for index builds. Zero
	// means one worker per CPU.
	BuildWorkers int
	// PreparedCacheSize caps the prepared query cache. Zero uses the
	// default size.
	PreparedCacheSize int
}

// WithComparer sets the comparer for value comparison operations.
func WithComparer(c Comparer) StoreOption {
	return func(so *StoreOptions) {
		so.Comparer = c
	}
}

// WithHasher sets the hasher for grouping and deduplication.
func WithHasher(h Hasher) StoreOption {
	return func(so *StoreOptions) {
		so.Hasher = h
	}
}

// WithDecoder sets the decoder for result conversion.
func WithDecoder(d Decoder) StoreOption {
	return func(so *StoreOptions) {
		so.Decoder = d
	}
}

// WithDocumentFactory sets the function for creating [Document] instances.
func WithDocumentFactory(f DocumentFactory) StoreOption {
	return func(so *StoreOptions) {
		so.DocumentFactory = f
	}
}

// WithPathNavigator sets the path navigator used by index key extraction.
func WithPathNavigator(p PathNavigator) StoreOption {
	return func(so *StoreOptions) {
		so.PathNavigator = p
	}
}

// WithParser sets the query parser implementation.
func WithParser(p Parser) StoreOption {
	return func(so *StoreOptions) {
		so.Parser = p
	}
}

// WithPlanner sets the planner implementation.
func WithPlanner(p Planner) StoreOption {
	return func(so *StoreOptions) {
		so.Planner = p
	}
}

// WithExecutor sets the executor implementation.
func WithExecutor(e Executor) StoreOption {
	return func(so *StoreOptions) {
		so.Executor = e
	}
}

// WithReadUnits caps read operations per second per table. Exceeding the
// budget surfaces ErrResourceExhausted.
func WithReadUnits(n int) StoreOption {
	return func(so *StoreOptions) {
		so.ReadUnits = n
	}
}

// WithWriteUnits caps write operations per second per table. Exceeding the
// budget surfaces ErrResourceExhausted.
func WithWriteUnits(n int) StoreOption {
	return func(so *StoreOptions) {
		so.WriteUnits = n
	}
}

// WithBuildWorkers sets the worker pool size used when building an index
// over existing documents.
func WithBuildWorkers(n int) StoreOption {
	return func(so *StoreOptions) {
		so.BuildWorkers = n
	}
}

// WithPreparedCacheSize caps the number of prepared queries kept by the
// store, keyed by query text.
func WithPreparedCacheSize(n int) StoreOption {
	return func(so *StoreOptions) {
		so.PreparedCacheSize = n
	}
}
