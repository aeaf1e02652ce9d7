package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DataDir           string   // root directory of the session tables
	ResultsDir        string   // directory with race results json files
	Sessions          []string // session keys like 2023/6/R
	ManifestFile      string   // additional manifest file, overrides builtin manifests
	GapTolerance      string   // max distance between lap and gap sample
	WeatherTolerance  string   // max distance between lap and weather sample, empty means unlimited
	LappedGap         float64  // seconds used for lapped cars in gap columns
	GapDriverColumn   string   // lap column matching the driver of the gap feed, empty: DriverNumber
	Workers           int      // number of concurrent group workers
	AccurateOnly      bool     // keep only laps flagged as accurate
	Output            string   // output directory, file or connection string
	Format            string   // parquet, csv, sqlite, postgres
	DB                string   // connection string for the database
	NatsURL           string   // publish run summaries to this NATS server
	NatsSubject       string   // subject for run summaries
	WaitForServices   string   // duration to wait for other services to be ready
	LogLevel          string   // sets the log level (zap log level values)
	LogFormat         string   // text vs json
	LogFilter         string   // zapfilter rules, e.g. "*:info grouper:debug"
	EnableTelemetry   bool     // enable telemetry
	TelemetryEndpoint string   // endpoint for telemetry, "stdout" prints to console
)
