package pool

import "time"

// Defaults mirror the teacher's NewDefaultPoolConfig constants, adapted
// from millisecond ints to time.Duration, which is the idiomatic Go
// representation for the same quantities (SPEC_FULL.md §5).
const (
	DefaultMaxTotal                    = 8
	DefaultMaxIdle                     = 8
	DefaultMinIdle                     = 0
	DefaultBlockWhenExhausted          = true
	DefaultMaxWait                     = -1 * time.Millisecond // block indefinitely
	DefaultLifo                        = true
	DefaultTestOnCreate                = false
	DefaultTestOnBorrow                = false
	DefaultTestOnReturn                = false
	DefaultTestWhileIdle               = false
	DefaultTimeBetweenEvictionRuns     = 0 * time.Millisecond // evictor disabled
	DefaultNumTestsPerEvictionRun      = 3
	DefaultMinEvictableIdleTime        = 30 * time.Minute
	DefaultSoftMinEvictableIdleTime    = time.Duration(-1)
	DefaultMaxTotalPerKey              = 8
	DefaultMaxIdlePerKey               = 8
	DefaultMinIdlePerKey               = 0
	defaultCompactionFraction          = 0.15
	defaultSchedulerIdleShutdownPeriod = 10 * time.Second
)

// PoolConfig configures a SinglePool. The zero value is not ready to use;
// build one with NewDefaultPoolConfig and override only what differs.
type PoolConfig struct {
	MaxTotal int // <0 means unlimited
	MaxIdle  int // <0 means unlimited
	MinIdle  int

	BlockWhenExhausted bool
	MaxWait            time.Duration // <0 means wait indefinitely

	Lifo bool // true: LIFO reuse (head); false: FIFO reuse (tail)

	TestOnCreate  bool
	TestOnBorrow  bool
	TestOnReturn  bool
	TestWhileIdle bool

	TimeBetweenEvictionRuns     time.Duration // <=0 disables the evictor
	NumTestsPerEvictionRun      int           // negative -n means ceil(idle/n)
	MinEvictableIdleTime        time.Duration
	SoftMinEvictableIdleTime    time.Duration // honored only while idle > MinIdle
	EvictionPolicy              EvictionPolicy
	Abandoned                   *AbandonedConfig

	// Logger receives evictor and lifecycle diagnostics. Defaults to
	// logrus.StandardLogger() and is never invoked while a pool lock is
	// held (SPEC_FULL.md §2.2).
	Logger FieldLogger
}

// NewDefaultPoolConfig returns the teacher's defaults translated to
// time.Duration.
func NewDefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxTotal:                 DefaultMaxTotal,
		MaxIdle:                  DefaultMaxIdle,
		MinIdle:                  DefaultMinIdle,
		BlockWhenExhausted:       DefaultBlockWhenExhausted,
		MaxWait:                  DefaultMaxWait,
		Lifo:                     DefaultLifo,
		TestOnCreate:             DefaultTestOnCreate,
		TestOnBorrow:             DefaultTestOnBorrow,
		TestOnReturn:             DefaultTestOnReturn,
		TestWhileIdle:            DefaultTestWhileIdle,
		TimeBetweenEvictionRuns:  DefaultTimeBetweenEvictionRuns,
		NumTestsPerEvictionRun:   DefaultNumTestsPerEvictionRun,
		MinEvictableIdleTime:     DefaultMinEvictableIdleTime,
		SoftMinEvictableIdleTime: DefaultSoftMinEvictableIdleTime,
		EvictionPolicy:           DefaultEvictionPolicy{},
		Logger:                   defaultLogger(),
	}
}

// KeyedPoolConfig configures a KeyedPool, adding the per-key caps spec.md
// §6.3 lists alongside the global ones.
type KeyedPoolConfig struct {
	MaxTotal       int // global cap across all keys, <0 unlimited
	MaxTotalPerKey int // <0 unlimited
	MaxIdlePerKey  int
	MinIdlePerKey  int

	BlockWhenExhausted bool
	MaxWait            time.Duration

	Lifo bool

	TestOnCreate  bool
	TestOnBorrow  bool
	TestOnReturn  bool
	TestWhileIdle bool

	TimeBetweenEvictionRuns time.Duration
	NumTestsPerEvictionRun  int
	MinEvictableIdleTime    time.Duration
	SoftMinEvictableIdleTime time.Duration
	EvictionPolicy          EvictionPolicy
	Abandoned               *AbandonedConfig

	Logger FieldLogger
}

func NewDefaultKeyedPoolConfig() *KeyedPoolConfig {
	return &KeyedPoolConfig{
		MaxTotal:                 DefaultMaxTotal,
		MaxTotalPerKey:           DefaultMaxTotalPerKey,
		MaxIdlePerKey:            DefaultMaxIdlePerKey,
		MinIdlePerKey:            DefaultMinIdlePerKey,
		BlockWhenExhausted:       DefaultBlockWhenExhausted,
		MaxWait:                  DefaultMaxWait,
		Lifo:                     DefaultLifo,
		TestOnCreate:             DefaultTestOnCreate,
		TestOnBorrow:             DefaultTestOnBorrow,
		TestOnReturn:             DefaultTestOnReturn,
		TestWhileIdle:            DefaultTestWhileIdle,
		TimeBetweenEvictionRuns:  DefaultTimeBetweenEvictionRuns,
		NumTestsPerEvictionRun:   DefaultNumTestsPerEvictionRun,
		MinEvictableIdleTime:     DefaultMinEvictableIdleTime,
		SoftMinEvictableIdleTime: DefaultSoftMinEvictableIdleTime,
		EvictionPolicy:           DefaultEvictionPolicy{},
		Logger:                   defaultLogger(),
	}
}

// AbandonedConfig enables the supplemented abandoned-object sweep
// (SPEC_FULL.md §4), grounded on the teacher's AbandonedConfig field.
type AbandonedConfig struct {
	RemoveAbandonedOnBorrow      bool
	RemoveAbandonedOnMaintenance bool
	RemoveAbandonedTimeout       time.Duration
}
