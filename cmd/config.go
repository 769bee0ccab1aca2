package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	AuthTokenSecret      string        `env:"AUTH_TOKEN_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,required=true"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	// HistoryPageSize nil means unlimited pages.
	HistoryPageSize    *int          `env:"HISTORY_PAGE_SIZE"`
	IndexBatchSize     int           `env:"INDEX_BATCH_SIZE,default=32"`
	IndexFlushInterval time.Duration `env:"INDEX_FLUSH_INTERVAL,default=500ms"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout        time.Duration `env:"PONG_TIMEOUT,default=60s"`
	PingInterval       time.Duration `env:"PING_INTERVAL,default=25s"`
	SeedDemo           bool          `env:"SEED_DEMO,default=false"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}
