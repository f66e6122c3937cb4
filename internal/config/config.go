package config // package config loads application configuration from environment variables

import (
    "log"  // log reports an unreadable .env file
    "os"   // os provides access to environment variables
    "time" // time parses the shutdown budget

    "github.com/joho/godotenv" // godotenv loads variables from an optional .env file
)

// Config holds the runtime configuration of the form store.  Every field has
// a default so the service starts on port 3000 with no environment at all.
type Config struct {
    Env             string        // application environment (e.g. "dev", "prod")
    Port            string        // HTTP port to listen on
    DataFile        string        // backing file holding the JSON array of records
    IndexFile       string        // static landing page served on GET /
    BodyLimit       string        // max request body accepted on POST /data (echo size syntax, e.g. "100K")
    LogLevel        string        // echo logger level: debug, info, warn, error, off
    ShutdownTimeout time.Duration // budget for graceful shutdown
}

// Load reads an optional .env file and then the process environment.  Values
// already present in the environment win over the file.
func Load() Config {
    loadDotEnv(envStr("ENV_FILE", ".env"))
    return Config{
        Env:             envStr("APP_ENV", "dev"),             // environment (dev/test/prod)
        Port:            envStr("APP_PORT", "3000"),           // port to bind the HTTP server
        DataFile:        envStr("DATA_FILE", "data/data.json"), // backing file
        IndexFile:       envStr("INDEX_FILE", "index.html"),    // landing page
        BodyLimit:       envStr("BODY_LIMIT", "100K"),          // body-parser default limit
        LogLevel:        envStr("LOG_LEVEL", "info"),           // echo logger level
        ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
    }
}

// loadDotEnv loads path when it exists.  A missing file is normal; a file
// that exists but cannot be parsed is reported and ignored.
func loadDotEnv(path string) {
    if _, err := os.Stat(path); err != nil {
        return
    }
    if err := godotenv.Load(path); err != nil {
        log.Printf("config: ignoring %s: %v", path, err)
    }
}
